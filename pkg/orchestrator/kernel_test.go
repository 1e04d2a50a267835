package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/automatosx/automatosx/pkg/assembler"
	"github.com/automatosx/automatosx/pkg/delegation"
	"github.com/automatosx/automatosx/pkg/memory"
	"github.com/automatosx/automatosx/pkg/profile"
	"github.com/automatosx/automatosx/pkg/progress"
	"github.com/automatosx/automatosx/pkg/provider"
	"github.com/automatosx/automatosx/pkg/session"
	"github.com/automatosx/automatosx/pkg/workspace"
)

type fakeLoader struct {
	profiles map[string]*profile.Profile
}

func (f fakeLoader) Load(name string) (*profile.Profile, error) {
	p, ok := f.profiles[name]
	if !ok {
		return nil, errors.New("agent not found: " + name)
	}
	return p, nil
}

func (f fakeLoader) Names() []string {
	names := make([]string, 0, len(f.profiles))
	for n := range f.profiles {
		names = append(names, n)
	}
	return names
}

type fakeAbilityLoader struct{}

func (fakeAbilityLoader) Load(name string) (string, error) { return "", nil }

type fakeProvider struct {
	name     string
	response string
}

func (p *fakeProvider) Name() string { return p.name }
func (p *fakeProvider) Descriptor() provider.Descriptor {
	return provider.Descriptor{Name: p.name, Priority: 1}
}
func (p *fakeProvider) Execute(ctx context.Context, req provider.ExecutionRequest) (provider.ExecutionResponse, error) {
	return provider.ExecutionResponse{Content: p.response, Model: req.Model, ProviderName: p.name}, nil
}
func (p *fakeProvider) IsAvailable(ctx context.Context) bool { return true }
func (p *fakeProvider) Close() error                         { return nil }

func newTestKernel(t *testing.T, profiles map[string]*profile.Profile, resp string) *Kernel {
	t.Helper()
	router := provider.NewRouter([]provider.Provider{&fakeProvider{name: "mock", response: resp}})
	sessions := session.NewManager(t.TempDir()+"/sessions.json", slog.Default())
	store, err := memory.Open(memory.Config{Path: t.TempDir() + "/memory.db"}, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return New(Config{
		Profiles:        fakeLoader{profiles: profiles},
		Abilities:       fakeAbilityLoader{},
		Providers:       router,
		Sessions:        sessions,
		Memory:          store,
		Workspace:       workspace.New(t.TempDir()),
		Progress:        progress.NewBus(0, slog.Default()),
		DefaultProvider: "mock",
		Logger:          slog.Default(),
	})
}

func TestRunSingleShotRecordsSessionAndMemory(t *testing.T) {
	profiles := map[string]*profile.Profile{
		"coder": {Name: "coder", SystemPrompt: "You write code."},
	}
	k := newTestKernel(t, profiles, "done")

	res, err := k.Run(context.Background(), RunRequest{AgentName: "coder", Task: "implement the thing"})
	require.NoError(t, err)
	assert.Equal(t, "done", res.Response)
	assert.NotEmpty(t, res.SessionID)
	assert.NotZero(t, res.MemoryID)

	active := k.Sessions().GetActiveSessions()
	require.Len(t, active, 1)
	assert.Equal(t, res.SessionID, active[0].ID)

	hits, err := k.MemoryStore().Search(context.Background(), memory.SearchOptions{Text: "implement"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
}

func TestRunUnknownAgentPropagatesError(t *testing.T) {
	k := newTestKernel(t, map[string]*profile.Profile{}, "done")
	_, err := k.Run(context.Background(), RunRequest{AgentName: "missing", Task: "x"})
	assert.Error(t, err)
}

func TestRunJoinsExistingSession(t *testing.T) {
	profiles := map[string]*profile.Profile{
		"coder":    {Name: "coder"},
		"reviewer": {Name: "reviewer"},
	}
	k := newTestKernel(t, profiles, "done")

	first, err := k.Run(context.Background(), RunRequest{AgentName: "coder", Task: "start"})
	require.NoError(t, err)

	_, err = k.Run(context.Background(), RunRequest{AgentName: "reviewer", Task: "continue", SessionID: first.SessionID})
	require.NoError(t, err)

	sess, err := k.Sessions().GetSession(first.SessionID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"coder", "reviewer"}, sess.Agents)
}

func TestDelegateExecuteReentersRunAndRespectsDepth(t *testing.T) {
	profiles := map[string]*profile.Profile{
		"coder":    {Name: "coder", Orchestration: profile.Orchestration{MaxDelegationDepth: 2}},
		"reviewer": {Name: "reviewer"},
	}
	k := newTestKernel(t, profiles, "reviewed")

	sess := k.Sessions().CreateSession("ship it", "coder")
	result, err := k.Delegation.Delegate(context.Background(), delegation.Request{
		FromAgent: "coder",
		ToAgent:   "reviewer",
		Task:      "review the diff",
		Context: delegation.Context{
			SessionID:       sess.ID,
			DelegationChain: []string{"coder"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "reviewed", result.Response)
	assert.Equal(t, "completed", result.Status)
}

func TestStringifyShared(t *testing.T) {
	out := stringifyShared(map[string]any{"count": 3, "label": "x"})
	assert.Equal(t, "3", out["count"])
	assert.Equal(t, "x", out["label"])
}

func TestMemorySearcherAdaptsStoreResults(t *testing.T) {
	store, err := memory.Open(memory.Config{Path: t.TempDir() + "/m.db"}, slog.Default())
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Add(context.Background(), "the quick brown fox", nil, memory.Metadata{Type: memory.EntryTypeDocument})
	require.NoError(t, err)

	ms := memorySearcher{store: store}
	hits, err := ms.Search(context.Background(), "fox", 5, assembler.MemoryFilter{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "the quick brown fox", hits[0].Content)
}
