package rpcserver

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/automatosx/automatosx/pkg/apperrors"
	"github.com/automatosx/automatosx/pkg/memory"
	"github.com/automatosx/automatosx/pkg/orchestrator"
)

// buildToolTable returns the non-reflective name-to-handler dispatch table.
// Every entry here must have a matching ToolDef in toolDefs below.
func (s *Server) buildToolTable() map[string]toolHandler {
	return map[string]toolHandler{
		"run_agent":        handleRunAgent,
		"list_agents":      handleListAgents,
		"search_memory":    handleSearchMemory,
		"get_status":       handleGetStatus,
		"session_create":   handleSessionCreate,
		"session_list":     handleSessionList,
		"session_status":   handleSessionStatus,
		"session_complete": handleSessionComplete,
		"session_fail":     handleSessionFail,
		"memory_add":       handleMemoryAdd,
		"memory_list":      handleMemoryList,
		"memory_delete":    handleMemoryDelete,
		"memory_export":    handleMemoryExport,
		"memory_import":    handleMemoryImport,
		"memory_stats":     handleMemoryStats,
		"memory_clear":     handleMemoryClear,
	}
}

// toolDefs is tools/list's advertised catalog. Order matches buildToolTable
// for easy side-by-side review.
var toolDefs = []ToolDef{
	{Name: "run_agent", Description: "Run an agent on a task.", InputSchema: schema(
		[]string{"agent", "task"},
		"agent", "string", "task", "string", "provider", "string", "no_memory", "boolean",
	)},
	{Name: "list_agents", Description: "List every known agent name.", InputSchema: schema(nil)},
	{Name: "search_memory", Description: "Full-text search the memory store.", InputSchema: schema(
		[]string{"query"}, "query", "string", "limit", "integer",
	)},
	{Name: "get_status", Description: "Report provider, session, and memory status.", InputSchema: schema(nil)},
	{Name: "session_create", Description: "Create a new session.", InputSchema: schema(
		[]string{"task", "initiator"}, "task", "string", "initiator", "string",
	)},
	{Name: "session_list", Description: "List active sessions.", InputSchema: schema(nil)},
	{Name: "session_status", Description: "Get one session's status.", InputSchema: schema(
		[]string{"session_id"}, "session_id", "string",
	)},
	{Name: "session_complete", Description: "Mark a session completed.", InputSchema: schema(
		[]string{"session_id"}, "session_id", "string",
	)},
	{Name: "session_fail", Description: "Mark a session failed.", InputSchema: schema(
		[]string{"session_id"}, "session_id", "string", "reason", "string",
	)},
	{Name: "memory_add", Description: "Add a memory entry.", InputSchema: schema(
		[]string{"content"}, "content", "string", "type", "string", "tags", "array", "agent_id", "string",
	)},
	{Name: "memory_list", Description: "List memory entries.", InputSchema: schema(
		nil, "type", "string", "limit", "integer", "offset", "integer",
	)},
	{Name: "memory_delete", Description: "Delete a memory entry by id.", InputSchema: schema(
		[]string{"id"}, "id", "integer",
	)},
	{Name: "memory_export", Description: "Export memory entries to a JSON file.", InputSchema: schema(
		[]string{"path"}, "path", "string", "type", "string",
	)},
	{Name: "memory_import", Description: "Import memory entries from a JSON file.", InputSchema: schema(
		[]string{"path"}, "path", "string", "skip_duplicates", "boolean", "validate", "boolean",
	)},
	{Name: "memory_stats", Description: "Report memory store occupancy.", InputSchema: schema(nil)},
	{Name: "memory_clear", Description: "Delete every memory entry.", InputSchema: schema(nil)},
}

// schema builds a minimal JSON Schema object: required lists the required
// property names, and the remaining varargs are name/type pairs.
func schema(required []string, nameType ...string) map[string]any {
	props := map[string]any{}
	for i := 0; i+1 < len(nameType); i += 2 {
		props[nameType[i]] = map[string]any{"type": nameType[i+1]}
	}
	s := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func unmarshalParams(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return apperrors.Wrap(apperrors.CodeInvalidParams, err, "invalid tool arguments")
	}
	return nil
}

// --- run_agent / list_agents / search_memory / get_status ---

type runAgentParams struct {
	Agent    string `json:"agent"`
	Task     string `json:"task"`
	Provider string `json:"provider"`
	NoMemory bool   `json:"no_memory"`
}

func handleRunAgent(ctx context.Context, s *Server, raw json.RawMessage) (ToolResult, error) {
	var p runAgentParams
	if err := unmarshalParams(raw, &p); err != nil {
		return ToolResult{}, err
	}
	if err := validateAgentName(p.Agent); err != nil {
		return ToolResult{}, err
	}
	if err := validateText("task", p.Task); err != nil {
		return ToolResult{}, err
	}

	res, err := s.Backend.Run(ctx, orchestrator.RunRequest{
		AgentName:  p.Agent,
		Task:       p.Task,
		Provider:   p.Provider,
		SkipMemory: p.NoMemory,
	})
	if err != nil {
		return errResult(err), nil
	}
	return textResult(res.Response), nil
}

func handleListAgents(ctx context.Context, s *Server, raw json.RawMessage) (ToolResult, error) {
	return jsonResult(s.Backend.ListAgents()), nil
}

type searchMemoryParams struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

func handleSearchMemory(ctx context.Context, s *Server, raw json.RawMessage) (ToolResult, error) {
	var p searchMemoryParams
	if err := unmarshalParams(raw, &p); err != nil {
		return ToolResult{}, err
	}
	if err := validateText("query", p.Query); err != nil {
		return ToolResult{}, err
	}
	limit := p.Limit
	if limit <= 0 {
		limit = 10
	}

	entries, err := s.Backend.SearchMemory(ctx, p.Query, limit)
	if err != nil {
		return errResult(err), nil
	}
	return jsonResult(entries), nil
}

func handleGetStatus(ctx context.Context, s *Server, raw json.RawMessage) (ToolResult, error) {
	status, err := s.Backend.GetStatus(ctx)
	if err != nil {
		return errResult(err), nil
	}
	return jsonResult(status), nil
}

// --- session_* ---

type sessionCreateParams struct {
	Task      string `json:"task"`
	Initiator string `json:"initiator"`
}

func handleSessionCreate(ctx context.Context, s *Server, raw json.RawMessage) (ToolResult, error) {
	var p sessionCreateParams
	if err := unmarshalParams(raw, &p); err != nil {
		return ToolResult{}, err
	}
	if err := validateAgentName(p.Initiator); err != nil {
		return ToolResult{}, err
	}
	if err := validateText("task", p.Task); err != nil {
		return ToolResult{}, err
	}
	sess := s.Backend.Sessions().CreateSession(p.Task, p.Initiator)
	return jsonResult(sess), nil
}

func handleSessionList(ctx context.Context, s *Server, raw json.RawMessage) (ToolResult, error) {
	return jsonResult(s.Backend.Sessions().GetActiveSessions()), nil
}

type sessionIDParams struct {
	SessionID string `json:"session_id"`
}

func handleSessionStatus(ctx context.Context, s *Server, raw json.RawMessage) (ToolResult, error) {
	var p sessionIDParams
	if err := unmarshalParams(raw, &p); err != nil {
		return ToolResult{}, err
	}
	if p.SessionID == "" {
		return ToolResult{}, apperrors.New(apperrors.CodeInvalidInput, "session_id is required")
	}
	sess, err := s.Backend.Sessions().GetSession(p.SessionID)
	if err != nil {
		return errResult(err), nil
	}
	return jsonResult(sess), nil
}

func handleSessionComplete(ctx context.Context, s *Server, raw json.RawMessage) (ToolResult, error) {
	var p sessionIDParams
	if err := unmarshalParams(raw, &p); err != nil {
		return ToolResult{}, err
	}
	if p.SessionID == "" {
		return ToolResult{}, apperrors.New(apperrors.CodeInvalidInput, "session_id is required")
	}
	if err := s.Backend.Sessions().CompleteSession(p.SessionID); err != nil {
		return errResult(err), nil
	}
	return textResult("completed"), nil
}

type sessionFailParams struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
}

func handleSessionFail(ctx context.Context, s *Server, raw json.RawMessage) (ToolResult, error) {
	var p sessionFailParams
	if err := unmarshalParams(raw, &p); err != nil {
		return ToolResult{}, err
	}
	if p.SessionID == "" {
		return ToolResult{}, apperrors.New(apperrors.CodeInvalidInput, "session_id is required")
	}
	var cause error
	if p.Reason != "" {
		cause = errors.New(p.Reason)
	}
	if err := s.Backend.Sessions().FailSession(p.SessionID, cause); err != nil {
		return errResult(err), nil
	}
	return textResult("failed"), nil
}

// --- memory_* ---

type memoryAddParams struct {
	Content string   `json:"content"`
	Type    string   `json:"type"`
	Tags    []string `json:"tags"`
	AgentID string   `json:"agent_id"`
}

func handleMemoryAdd(ctx context.Context, s *Server, raw json.RawMessage) (ToolResult, error) {
	var p memoryAddParams
	if err := unmarshalParams(raw, &p); err != nil {
		return ToolResult{}, err
	}
	if err := validateText("content", p.Content); err != nil {
		return ToolResult{}, err
	}
	store := s.Backend.MemoryStore()
	if store == nil {
		return ToolResult{}, apperrors.New(apperrors.CodeMemoryNotInitialized, "memory store is not configured")
	}
	entryType := memory.EntryType(p.Type)
	if entryType == "" {
		entryType = memory.EntryTypeOther
	}
	entry, err := store.Add(ctx, p.Content, nil, memory.Metadata{Type: entryType, Tags: p.Tags, AgentID: p.AgentID})
	if err != nil {
		return errResult(err), nil
	}
	return jsonResult(entry), nil
}

type memoryListParams struct {
	Type   string `json:"type"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

func handleMemoryList(ctx context.Context, s *Server, raw json.RawMessage) (ToolResult, error) {
	var p memoryListParams
	if err := unmarshalParams(raw, &p); err != nil {
		return ToolResult{}, err
	}
	store := s.Backend.MemoryStore()
	if store == nil {
		return ToolResult{}, apperrors.New(apperrors.CodeMemoryNotInitialized, "memory store is not configured")
	}
	entries, err := store.GetAll(ctx, memory.GetAllOptions{Type: memory.EntryType(p.Type), Limit: p.Limit, Offset: p.Offset})
	if err != nil {
		return errResult(err), nil
	}
	return jsonResult(entries), nil
}

type memoryDeleteParams struct {
	ID int64 `json:"id"`
}

func handleMemoryDelete(ctx context.Context, s *Server, raw json.RawMessage) (ToolResult, error) {
	var p memoryDeleteParams
	if err := unmarshalParams(raw, &p); err != nil {
		return ToolResult{}, err
	}
	store := s.Backend.MemoryStore()
	if store == nil {
		return ToolResult{}, apperrors.New(apperrors.CodeMemoryNotInitialized, "memory store is not configured")
	}
	if err := store.Delete(ctx, p.ID); err != nil {
		return errResult(err), nil
	}
	return textResult("deleted"), nil
}

type memoryExportParams struct {
	Path string `json:"path"`
	Type string `json:"type"`
}

func handleMemoryExport(ctx context.Context, s *Server, raw json.RawMessage) (ToolResult, error) {
	var p memoryExportParams
	if err := unmarshalParams(raw, &p); err != nil {
		return ToolResult{}, err
	}
	if err := validatePath("path", p.Path); err != nil {
		return ToolResult{}, err
	}
	store := s.Backend.MemoryStore()
	if store == nil {
		return ToolResult{}, apperrors.New(apperrors.CodeMemoryNotInitialized, "memory store is not configured")
	}
	if err := store.ExportToJSON(ctx, p.Path, memory.ExportFilter{Type: memory.EntryType(p.Type)}); err != nil {
		return errResult(err), nil
	}
	return textResult("exported"), nil
}

type memoryImportParams struct {
	Path           string `json:"path"`
	SkipDuplicates bool   `json:"skip_duplicates"`
	Validate       bool   `json:"validate"`
}

func handleMemoryImport(ctx context.Context, s *Server, raw json.RawMessage) (ToolResult, error) {
	var p memoryImportParams
	if err := unmarshalParams(raw, &p); err != nil {
		return ToolResult{}, err
	}
	if err := validatePath("path", p.Path); err != nil {
		return ToolResult{}, err
	}
	store := s.Backend.MemoryStore()
	if store == nil {
		return ToolResult{}, apperrors.New(apperrors.CodeMemoryNotInitialized, "memory store is not configured")
	}
	result, err := store.ImportFromJSON(ctx, p.Path, memory.ImportOptions{SkipDuplicates: p.SkipDuplicates, Validate: p.Validate})
	if err != nil {
		return errResult(err), nil
	}
	return jsonResult(result), nil
}

func handleMemoryStats(ctx context.Context, s *Server, raw json.RawMessage) (ToolResult, error) {
	store := s.Backend.MemoryStore()
	if store == nil {
		return ToolResult{}, apperrors.New(apperrors.CodeMemoryNotInitialized, "memory store is not configured")
	}
	stats, err := store.GetStats(ctx)
	if err != nil {
		return errResult(err), nil
	}
	return jsonResult(stats), nil
}

func handleMemoryClear(ctx context.Context, s *Server, raw json.RawMessage) (ToolResult, error) {
	store := s.Backend.MemoryStore()
	if store == nil {
		return ToolResult{}, apperrors.New(apperrors.CodeMemoryNotInitialized, "memory store is not configured")
	}
	if err := store.Clear(ctx); err != nil {
		return errResult(err), nil
	}
	return textResult("cleared"), nil
}
