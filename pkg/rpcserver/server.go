package rpcserver

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/automatosx/automatosx/pkg/apperrors"
	"github.com/automatosx/automatosx/pkg/memory"
	"github.com/automatosx/automatosx/pkg/orchestrator"
	"github.com/automatosx/automatosx/pkg/session"
)

// ServerName/ServerVersion identify this process in the initialize result.
const (
	ServerName    = "automatosx"
	ServerVersion = "1.0.0"
)

// Backend is the narrow slice of *orchestrator.Kernel the RPC surface
// calls. Declared here, not in pkg/orchestrator, so this package depends on
// the capability it needs rather than the concrete kernel type.
type Backend interface {
	Run(ctx context.Context, req orchestrator.RunRequest) (*orchestrator.RunResult, error)
	ListAgents() []string
	SearchMemory(ctx context.Context, query string, limit int) ([]memory.Entry, error)
	GetStatus(ctx context.Context) (orchestrator.Status, error)
	Sessions() *session.Manager
	MemoryStore() *memory.Store
}

type toolHandler func(ctx context.Context, s *Server, params json.RawMessage) (ToolResult, error)

// Server is one JSON-RPC 2.0 stdio session. It is safe to construct once
// per process; Serve should be called exactly once.
type Server struct {
	Backend Backend
	Logger  *slog.Logger

	tools map[string]toolHandler

	mu           sync.Mutex
	initialized  bool
	initializing chan struct{}
	initResult   InitializeResult
	initErr      error

	outMu sync.Mutex
	wg    sync.WaitGroup
}

// New builds a Server over backend. The tool table is built once at
// construction; it never changes for the life of the Server.
func New(backend Backend, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{Backend: backend, Logger: logger}
	s.tools = s.buildToolTable()
	return s
}

func (s *Server) log() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Serve reads line-delimited JSON-RPC requests from in and writes responses
// to out until ctx is cancelled or in reaches EOF. Each request is handled
// on its own goroutine so a slow tool call never blocks others; Serve waits
// for every in-flight call to finish before returning once asked to stop.
//
// Cancelling ctx stops Serve from dispatching new requests but does not
// interrupt a blocked Scan on in — the caller is expected to close/exit the
// underlying stdin descriptor (or let process exit reap it) once Serve
// returns, which is how stdio transports are normally torn down.
func (s *Server) Serve(ctx context.Context, in *bufio.Scanner, out *bufio.Writer) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		for in.Scan() {
			select {
			case lines <- in.Text():
			case <-ctx.Done():
				scanErr <- nil
				return
			}
		}
		scanErr <- in.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				s.wg.Wait()
				return <-scanErr
			}
			if len(line) == 0 {
				continue
			}
			s.wg.Add(1)
			go func(line string) {
				defer s.wg.Done()
				s.handleLine(ctx, line, out)
			}(line)
		}
	}
}

func (s *Server) handleLine(ctx context.Context, line string, out *bufio.Writer) {
	var req Request
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		s.writeResponse(out, Response{
			JSONRPC: "2.0",
			Error:   &RPCError{Code: codeParseError, Message: "Parse error: Invalid JSON"},
		})
		return
	}
	s.writeResponse(out, s.dispatch(ctx, req))
}

func (s *Server) writeResponse(out *bufio.Writer, resp Response) {
	resp.JSONRPC = "2.0"
	data, err := json.Marshal(resp)
	if err != nil {
		s.log().Error("failed to marshal rpc response", "error", err)
		return
	}
	s.outMu.Lock()
	defer s.outMu.Unlock()
	out.Write(data)
	out.WriteByte('\n')
	out.Flush()
}

func (s *Server) dispatch(ctx context.Context, req Request) Response {
	switch req.Method {
	case "initialize":
		result, err := s.handleInitialize(ctx)
		return s.toResponse(req.ID, result, err)
	case "tools/list":
		if !s.isInitialized() {
			return s.errorResponse(req.ID, apperrors.New(apperrors.CodeNotInitialized, "server not initialized"))
		}
		return s.toResponse(req.ID, s.listTools(), nil)
	case "tools/call":
		if !s.isInitialized() {
			return s.errorResponse(req.ID, apperrors.New(apperrors.CodeNotInitialized, "server not initialized"))
		}
		result, err := s.callTool(ctx, req.Params)
		return s.toResponse(req.ID, result, err)
	default:
		return s.errorResponse(req.ID, apperrors.New(apperrors.CodeMethodNotFound, "method not found: "+req.Method))
	}
}

func (s *Server) toResponse(id json.RawMessage, result any, err error) Response {
	if err != nil {
		return s.errorResponse(id, err)
	}
	return Response{ID: id, Result: result}
}

func (s *Server) errorResponse(id json.RawMessage, err error) Response {
	return Response{ID: id, Error: &RPCError{Code: mapCode(err), Message: err.Error()}}
}

// mapCode translates an apperrors.Code into a JSON-RPC error code.
func mapCode(err error) int {
	appErr, ok := apperrors.As(err)
	if !ok {
		return codeInternalError
	}
	switch appErr.Code {
	case apperrors.CodeInvalidParams, apperrors.CodeInvalidAgentName, apperrors.CodeInvalidInput,
		apperrors.CodePathTraversal, apperrors.CodePathOutsideRoot, apperrors.CodePathInvalid,
		apperrors.CodePathSymlinkEscape, apperrors.CodePathTooLarge:
		return codeInvalidParams
	case apperrors.CodeToolNotFound:
		return codeToolNotFound
	case apperrors.CodeMethodNotFound:
		return codeMethodNotFound
	case apperrors.CodeNotInitialized:
		return codeNotInitialized
	default:
		return codeInternalError
	}
}

// handleInitialize implements the initialize race rule: a concurrent
// initialize call while one is already in flight awaits that call and
// shares its result rather than doing the work twice.
func (s *Server) handleInitialize(ctx context.Context) (InitializeResult, error) {
	s.mu.Lock()
	if s.initialized {
		result := s.initResult
		s.mu.Unlock()
		return result, nil
	}
	if s.initializing != nil {
		ch := s.initializing
		s.mu.Unlock()
		<-ch
		s.mu.Lock()
		result, err := s.initResult, s.initErr
		s.mu.Unlock()
		return result, err
	}
	ch := make(chan struct{})
	s.initializing = ch
	s.mu.Unlock()

	result := InitializeResult{ServerName: ServerName, ServerVersion: ServerVersion, ToolCount: len(s.tools)}

	s.mu.Lock()
	s.initResult = result
	s.initErr = nil
	s.initialized = true
	s.initializing = nil
	s.mu.Unlock()
	close(ch)

	return result, nil
}

func (s *Server) isInitialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

func (s *Server) listTools() []ToolDef {
	defs := make([]ToolDef, 0, len(s.tools))
	for _, d := range toolDefs {
		defs = append(defs, d)
	}
	return defs
}

func (s *Server) callTool(ctx context.Context, params json.RawMessage) (ToolResult, error) {
	var p ToolCallParams
	if err := json.Unmarshal(params, &p); err != nil {
		return ToolResult{}, apperrors.Wrap(apperrors.CodeInvalidParams, err, "invalid tools/call params")
	}
	handler, ok := s.tools[p.Name]
	if !ok {
		return ToolResult{}, apperrors.New(apperrors.CodeToolNotFound, "unknown tool").WithContext("tool", p.Name)
	}
	return handler(ctx, s, p.Arguments)
}
