package assembler

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/agext/levenshtein"

	"github.com/automatosx/automatosx/pkg/apperrors"
	"github.com/automatosx/automatosx/pkg/profile"
)

// maxSuggestionDistance bounds how far (in edits) a known agent name may be
// from the requested one to still be offered as a suggestion.
const maxSuggestionDistance = 3

// maxSuggestions caps how many nearest names are offered.
const maxSuggestions = 3

// Assembler builds ExecutionContexts from a profile loader, an ability
// loader, and an optional memory searcher.
type Assembler struct {
	Profiles  profile.Loader
	Abilities profile.AbilityLoader
	Memory    MemorySearcher

	// DefaultProvider is used when neither the call options nor the
	// profile specify one.
	DefaultProvider string

	Logger *slog.Logger
}

func (a *Assembler) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

// Assemble resolves agentName, loads its abilities and recalled memory, and
// produces a deterministic prompt and ExecutionContext.
func (a *Assembler) Assemble(ctx context.Context, agentName, task string, opts Options) (*ExecutionContext, error) {
	prof, err := a.loadProfile(agentName)
	if err != nil {
		return nil, err
	}

	ec := &ExecutionContext{
		Profile:         *prof,
		SessionID:       opts.SessionID,
		DelegationChain: append([]string(nil), opts.DelegationChain...),
		SharedData:      opts.SharedData,
	}

	abilitiesSection, warnings := a.loadAbilities(prof, opts.StrictAbilities)
	ec.Warnings = append(ec.Warnings, warnings...)
	if opts.StrictAbilities && len(warnings) > 0 {
		return nil, apperrors.New(apperrors.CodeAbilityNotFound, "one or more abilities could not be loaded").
			WithContext("agent", prof.Name).
			WithContext("warnings", warnings)
	}

	memorySection := ""
	if !opts.SkipMemory {
		memorySection = a.recallMemory(ctx, ec, task, opts)
	}

	ec.Provider = selectProvider(opts.Provider, prof.Provider, a.DefaultProvider)
	ec.Model = selectModel(opts.Model, prof.Model)
	ec.Prompt = buildPrompt(prof.SystemPrompt, abilitiesSection, memorySection, task)

	return ec, nil
}

func (a *Assembler) loadProfile(agentName string) (*profile.Profile, error) {
	if a.Profiles == nil {
		return nil, apperrors.New(apperrors.CodeConfigInvalid, "assembler has no profile loader configured")
	}

	prof, err := a.Profiles.Load(agentName)
	if err == nil {
		return prof, nil
	}

	suggestions := nearestNames(agentName, a.Profiles.Names())
	notFound := apperrors.New(apperrors.CodeAgentNotFound, "agent not found").
		WithContext("agent", agentName)
	if len(suggestions) > 0 {
		notFound = notFound.WithSuggestions(suggestions...)
	}
	return nil, notFound
}

// nearestNames returns known names within maxSuggestionDistance edits of
// name, closest first, capped at maxSuggestions.
func nearestNames(name string, known []string) []string {
	type candidate struct {
		name     string
		distance int
	}
	var candidates []candidate
	for _, k := range known {
		d := levenshtein.Distance(name, k, nil)
		if d <= maxSuggestionDistance {
			candidates = append(candidates, candidate{name: k, distance: d})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].distance != candidates[j].distance {
			return candidates[i].distance < candidates[j].distance
		}
		return candidates[i].name < candidates[j].name
	})

	if len(candidates) > maxSuggestions {
		candidates = candidates[:maxSuggestions]
	}
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.name
	}
	return out
}

// loadAbilities resolves every ability name on prof, returning the
// concatenated section and a warning per name that failed to load. Unknown
// abilities are never fatal unless the caller asked for strict mode.
func (a *Assembler) loadAbilities(prof *profile.Profile, strict bool) (string, []string) {
	if len(prof.Abilities) == 0 || a.Abilities == nil {
		return "", nil
	}

	var builder strings.Builder
	var warnings []string
	for _, name := range prof.Abilities {
		content, err := a.Abilities.Load(name)
		if err != nil {
			warning := "ability not found: " + name
			warnings = append(warnings, warning)
			if !strict {
				a.logger().Warn("skipping unknown ability", "agent", prof.Name, "ability", name)
			}
			continue
		}
		if builder.Len() > 0 {
			builder.WriteString("\n\n")
		}
		builder.WriteString(content)
	}
	return builder.String(), warnings
}

// recallMemory retrieves the top-k memory entries relevant to task, bounded
// by a character budget, and records a warning (not a failure) if no
// memory backend is configured.
func (a *Assembler) recallMemory(ctx context.Context, ec *ExecutionContext, task string, opts Options) string {
	if a.Memory == nil {
		ec.Warnings = append(ec.Warnings, "memory recall skipped: no memory backend configured")
		return ""
	}

	topK := opts.MemoryTopK
	if topK <= 0 {
		topK = DefaultMemoryTopK
	}
	budget := opts.MemoryCharBudget
	if budget <= 0 {
		budget = DefaultMemoryCharBudget
	}

	hits, err := a.Memory.Search(ctx, task, topK, opts.MemoryFilter)
	if err != nil {
		ec.Warnings = append(ec.Warnings, "memory recall failed: "+err.Error())
		return ""
	}

	var builder strings.Builder
	remaining := budget
	for _, hit := range hits {
		if remaining <= 0 {
			break
		}
		content := hit.Content
		if len(content) > remaining {
			content = content[:remaining]
		}
		if builder.Len() > 0 {
			builder.WriteString("\n---\n")
		}
		builder.WriteString(content)
		remaining -= len(content)
	}
	return builder.String()
}

func selectProvider(explicit, profileProvider, fallback string) string {
	if explicit != "" {
		return explicit
	}
	if profileProvider != "" {
		return profileProvider
	}
	return fallback
}

func selectModel(explicit, profileModel string) string {
	if explicit != "" {
		return explicit
	}
	return profileModel
}

// buildPrompt composes the final prompt with each section appearing
// exactly once, in the fixed order system prompt, abilities, memory, task.
func buildPrompt(systemPrompt, abilities, memory, task string) string {
	var sections []string
	if systemPrompt != "" {
		sections = append(sections, systemPrompt)
	}
	if abilities != "" {
		sections = append(sections, "## Abilities\n\n"+abilities)
	}
	if memory != "" {
		sections = append(sections, "## Relevant memory\n\n"+memory)
	}
	sections = append(sections, "## Task\n\n"+task)
	return strings.Join(sections, "\n\n")
}
