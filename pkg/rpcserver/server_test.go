package rpcserver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/automatosx/automatosx/pkg/memory"
	"github.com/automatosx/automatosx/pkg/orchestrator"
	"github.com/automatosx/automatosx/pkg/session"
)

type fakeBackend struct {
	runFunc func(ctx context.Context, req orchestrator.RunRequest) (*orchestrator.RunResult, error)
	agents  []string
	sessions *session.Manager
	memoryStore *memory.Store
}

func (f *fakeBackend) Run(ctx context.Context, req orchestrator.RunRequest) (*orchestrator.RunResult, error) {
	return f.runFunc(ctx, req)
}
func (f *fakeBackend) ListAgents() []string { return f.agents }
func (f *fakeBackend) SearchMemory(ctx context.Context, query string, limit int) ([]memory.Entry, error) {
	return nil, nil
}
func (f *fakeBackend) GetStatus(ctx context.Context) (orchestrator.Status, error) {
	return orchestrator.Status{KnownAgents: f.agents}, nil
}
func (f *fakeBackend) Sessions() *session.Manager   { return f.sessions }
func (f *fakeBackend) MemoryStore() *memory.Store   { return f.memoryStore }

func newTestBackend(t *testing.T) *fakeBackend {
	t.Helper()
	store, err := memory.Open(memory.Config{Path: t.TempDir() + "/m.db"}, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return &fakeBackend{
		agents:      []string{"coder", "reviewer"},
		sessions:    session.NewManager(t.TempDir()+"/sessions.json", slog.Default()),
		memoryStore: store,
		runFunc: func(ctx context.Context, req orchestrator.RunRequest) (*orchestrator.RunResult, error) {
			return &orchestrator.RunResult{Response: "ok: " + req.Task}, nil
		},
	}
}

func newTestServer(t *testing.T) (*Server, *fakeBackend) {
	t.Helper()
	backend := newTestBackend(t)
	return New(backend, slog.Default()), backend
}

func mustMarshal(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestInitializeConcurrentCallsShareOneResult(t *testing.T) {
	s, _ := newTestServer(t)

	var wg sync.WaitGroup
	results := make([]Response, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = s.dispatch(context.Background(), Request{Method: "initialize"})
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		require.Nil(t, r.Error)
		require.NotNil(t, r.Result)
	}
	assert.True(t, s.isInitialized())
}

func TestPreInitRejectsToolsListAndToolsCall(t *testing.T) {
	s, _ := newTestServer(t)

	resp := s.dispatch(context.Background(), Request{Method: "tools/list"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeNotInitialized, resp.Error.Code)

	resp = s.dispatch(context.Background(), Request{Method: "tools/call"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeNotInitialized, resp.Error.Code)
}

func TestToolsListReturnsEveryDef(t *testing.T) {
	s, _ := newTestServer(t)
	s.dispatch(context.Background(), Request{Method: "initialize"})

	resp := s.dispatch(context.Background(), Request{Method: "tools/list"})
	require.Nil(t, resp.Error)
	defs, ok := resp.Result.([]ToolDef)
	require.True(t, ok)
	assert.Len(t, defs, len(s.tools))
}

func TestRunAgentHappyPath(t *testing.T) {
	s, _ := newTestServer(t)
	s.dispatch(context.Background(), Request{Method: "initialize"})

	params := mustMarshal(t, ToolCallParams{Name: "run_agent", Arguments: mustMarshal(t, runAgentParams{Agent: "coder", Task: "ship it"})})
	resp := s.dispatch(context.Background(), Request{Method: "tools/call", Params: params})
	require.Nil(t, resp.Error)

	result, ok := resp.Result.(ToolResult)
	require.True(t, ok)
	require.False(t, result.IsError)
	require.Len(t, result.Content, 1)
	assert.Equal(t, "ok: ship it", result.Content[0].Text)
}

func TestRunAgentRejectsInvalidAgentName(t *testing.T) {
	s, _ := newTestServer(t)
	s.dispatch(context.Background(), Request{Method: "initialize"})

	params := mustMarshal(t, ToolCallParams{Name: "run_agent", Arguments: mustMarshal(t, runAgentParams{Agent: "not a valid name!", Task: "x"})})
	resp := s.dispatch(context.Background(), Request{Method: "tools/call", Params: params})
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeInvalidParams, resp.Error.Code)
}

func TestRunAgentRejectsNullByteInTask(t *testing.T) {
	s, _ := newTestServer(t)
	s.dispatch(context.Background(), Request{Method: "initialize"})

	params := mustMarshal(t, ToolCallParams{Name: "run_agent", Arguments: mustMarshal(t, runAgentParams{Agent: "coder", Task: "bad\x00task"})})
	resp := s.dispatch(context.Background(), Request{Method: "tools/call", Params: params})
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeInvalidParams, resp.Error.Code)
}

func TestUnknownToolReturnsToolNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	s.dispatch(context.Background(), Request{Method: "initialize"})

	params := mustMarshal(t, ToolCallParams{Name: "does_not_exist", Arguments: json.RawMessage(`{}`)})
	resp := s.dispatch(context.Background(), Request{Method: "tools/call", Params: params})
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeToolNotFound, resp.Error.Code)
}

func TestUnknownMethodReturnsMethodNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	resp := s.dispatch(context.Background(), Request{Method: "bogus"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestRunAgentBackendErrorBecomesIsErrorResult(t *testing.T) {
	s, backend := newTestServer(t)
	backend.runFunc = func(ctx context.Context, req orchestrator.RunRequest) (*orchestrator.RunResult, error) {
		return nil, assertErr("agent not found")
	}
	s.dispatch(context.Background(), Request{Method: "initialize"})

	params := mustMarshal(t, ToolCallParams{Name: "run_agent", Arguments: mustMarshal(t, runAgentParams{Agent: "coder", Task: "x"})})
	resp := s.dispatch(context.Background(), Request{Method: "tools/call", Params: params})
	require.Nil(t, resp.Error)
	result := resp.Result.(ToolResult)
	assert.True(t, result.IsError)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

func TestHandleLineWritesParseErrorOnMalformedJSON(t *testing.T) {
	s, _ := newTestServer(t)
	var buf bytes.Buffer
	out := bufio.NewWriter(&buf)
	s.handleLine(context.Background(), "{not json", out)

	var resp Response
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeParseError, resp.Error.Code)
	assert.Equal(t, "Parse error: Invalid JSON", resp.Error.Message)
}

func TestServeProcessesLinesAndStopsOnCancel(t *testing.T) {
	s, _ := newTestServer(t)
	s.dispatch(context.Background(), Request{Method: "initialize"})

	in := bufio.NewScanner(strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}` + "\n"))
	var buf bytes.Buffer
	out := bufio.NewWriter(&buf)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, in, out) }()

	require.Eventually(t, func() bool {
		return buf.Len() > 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Serve did not stop after cancel")
	}
}
