package assembler

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/automatosx/automatosx/pkg/apperrors"
	"github.com/automatosx/automatosx/pkg/profile"
)

type fakeLoader struct {
	profiles map[string]*profile.Profile
}

func (f *fakeLoader) Load(name string) (*profile.Profile, error) {
	p, ok := f.profiles[name]
	if !ok {
		return nil, errors.New("not found")
	}
	return p, nil
}

func (f *fakeLoader) Names() []string {
	names := make([]string, 0, len(f.profiles))
	for n := range f.profiles {
		names = append(names, n)
	}
	return names
}

type fakeAbilityLoader struct {
	abilities map[string]string
}

func (f *fakeAbilityLoader) Load(name string) (string, error) {
	content, ok := f.abilities[name]
	if !ok {
		return "", errors.New("not found")
	}
	return content, nil
}

type fakeMemory struct {
	hits []MemoryHit
	err  error
}

func (f *fakeMemory) Search(ctx context.Context, text string, limit int, filter MemoryFilter) ([]MemoryHit, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.hits) {
		return f.hits[:limit], nil
	}
	return f.hits, nil
}

func newCoderProfile() *profile.Profile {
	return &profile.Profile{
		Name:         "coder",
		SystemPrompt: "You are a coding agent.",
		Abilities:    []string{"go-style"},
		Provider:     "claude",
		Model:        "sonnet",
	}
}

func TestAssembleAgentNotFoundOffersSuggestions(t *testing.T) {
	a := &Assembler{
		Profiles: &fakeLoader{profiles: map[string]*profile.Profile{
			"coder":    newCoderProfile(),
			"reviewer": {Name: "reviewer"},
		}},
	}

	_, err := a.Assemble(context.Background(), "coderr", "fix it", Options{})
	require.Error(t, err)

	var appErr *apperrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.CodeAgentNotFound, appErr.Code)
	assert.Contains(t, appErr.Suggestions, "coder")
}

func TestAssembleUnknownAbilityWarnsButDoesNotFail(t *testing.T) {
	a := &Assembler{
		Profiles:  &fakeLoader{profiles: map[string]*profile.Profile{"coder": newCoderProfile()}},
		Abilities: &fakeAbilityLoader{abilities: map[string]string{}},
	}

	ec, err := a.Assemble(context.Background(), "coder", "fix it", Options{SkipMemory: true})
	require.NoError(t, err)
	require.Len(t, ec.Warnings, 1)
	assert.Contains(t, ec.Warnings[0], "go-style")
	assert.NotContains(t, ec.Prompt, "## Abilities")
}

func TestAssembleStrictAbilitiesFailsOnMiss(t *testing.T) {
	a := &Assembler{
		Profiles:  &fakeLoader{profiles: map[string]*profile.Profile{"coder": newCoderProfile()}},
		Abilities: &fakeAbilityLoader{abilities: map[string]string{}},
	}

	_, err := a.Assemble(context.Background(), "coder", "fix it", Options{SkipMemory: true, StrictAbilities: true})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeAbilityNotFound, apperrors.CodeOf(err))
}

func TestAssembleInjectsMemoryWithinCharBudget(t *testing.T) {
	a := &Assembler{
		Profiles:  &fakeLoader{profiles: map[string]*profile.Profile{"coder": newCoderProfile()}},
		Abilities: &fakeAbilityLoader{abilities: map[string]string{"go-style": "use gofmt"}},
		Memory: &fakeMemory{hits: []MemoryHit{
			{Content: strings.Repeat("a", 6)},
			{Content: strings.Repeat("b", 6)},
		}},
	}

	ec, err := a.Assemble(context.Background(), "coder", "fix it", Options{MemoryCharBudget: 10})
	require.NoError(t, err)
	assert.Contains(t, ec.Prompt, "## Relevant memory")
	assert.Contains(t, ec.Prompt, strings.Repeat("a", 6))
	// second hit is truncated to the remaining 4 chars of budget
	assert.Contains(t, ec.Prompt, strings.Repeat("b", 4))
	assert.NotContains(t, ec.Prompt, strings.Repeat("b", 5))
}

func TestAssembleSkipMemorySkipsSearch(t *testing.T) {
	mem := &fakeMemory{hits: []MemoryHit{{Content: "should not appear"}}}
	a := &Assembler{
		Profiles: &fakeLoader{profiles: map[string]*profile.Profile{"coder": newCoderProfile()}},
		Memory:   mem,
	}

	ec, err := a.Assemble(context.Background(), "coder", "fix it", Options{SkipMemory: true})
	require.NoError(t, err)
	assert.NotContains(t, ec.Prompt, "should not appear")
}

func TestAssembleProviderPrecedence(t *testing.T) {
	a := &Assembler{
		Profiles:        &fakeLoader{profiles: map[string]*profile.Profile{"coder": newCoderProfile()}},
		DefaultProvider: "fallback-provider",
	}

	ec, err := a.Assemble(context.Background(), "coder", "fix it", Options{SkipMemory: true})
	require.NoError(t, err)
	assert.Equal(t, "claude", ec.Provider, "profile provider wins over assembler default")

	ec, err = a.Assemble(context.Background(), "coder", "fix it", Options{SkipMemory: true, Provider: "explicit-provider"})
	require.NoError(t, err)
	assert.Equal(t, "explicit-provider", ec.Provider, "explicit option wins over everything")

	noProviderProfile := &profile.Profile{Name: "bare"}
	a.Profiles = &fakeLoader{profiles: map[string]*profile.Profile{"bare": noProviderProfile}}
	ec, err = a.Assemble(context.Background(), "bare", "fix it", Options{SkipMemory: true})
	require.NoError(t, err)
	assert.Equal(t, "fallback-provider", ec.Provider, "assembler default wins when nothing else sets a provider")
}

func TestAssemblePromptSectionsAppearExactlyOnceInOrder(t *testing.T) {
	a := &Assembler{
		Profiles:  &fakeLoader{profiles: map[string]*profile.Profile{"coder": newCoderProfile()}},
		Abilities: &fakeAbilityLoader{abilities: map[string]string{"go-style": "use gofmt"}},
		Memory:    &fakeMemory{hits: []MemoryHit{{Content: "past incident notes"}}},
	}

	ec, err := a.Assemble(context.Background(), "coder", "fix the bug", Options{})
	require.NoError(t, err)

	systemIdx := strings.Index(ec.Prompt, "You are a coding agent.")
	abilitiesIdx := strings.Index(ec.Prompt, "## Abilities")
	memoryIdx := strings.Index(ec.Prompt, "## Relevant memory")
	taskIdx := strings.Index(ec.Prompt, "## Task")

	require.True(t, systemIdx >= 0 && abilitiesIdx >= 0 && memoryIdx >= 0 && taskIdx >= 0)
	assert.True(t, systemIdx < abilitiesIdx)
	assert.True(t, abilitiesIdx < memoryIdx)
	assert.True(t, memoryIdx < taskIdx)

	assert.Equal(t, 1, strings.Count(ec.Prompt, "## Abilities"))
	assert.Equal(t, 1, strings.Count(ec.Prompt, "## Relevant memory"))
	assert.Equal(t, 1, strings.Count(ec.Prompt, "## Task"))
}

func TestAssembleMemorySearchErrorWarnsButDoesNotFail(t *testing.T) {
	a := &Assembler{
		Profiles: &fakeLoader{profiles: map[string]*profile.Profile{"coder": newCoderProfile()}},
		Memory:   &fakeMemory{err: errors.New("db unavailable")},
	}

	ec, err := a.Assemble(context.Background(), "coder", "fix it", Options{})
	require.NoError(t, err)
	found := false
	for _, w := range ec.Warnings {
		if strings.Contains(w, "db unavailable") {
			found = true
		}
	}
	assert.True(t, found)
}
