package provider

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"
)

// CLIProvider dispatches to an external LLM command-line program as an
// opaque subprocess: the prompt goes in on stdin, the completion comes back
// on stdout. The backend's own flags, auth, and output format are entirely
// its concern; this type never parses backend-specific wire formats beyond
// treating stdout as the response text.
type CLIProvider struct {
	descriptor Descriptor
}

// NewCLIProvider wraps descriptor as a CLIProvider. descriptor.Command must
// have at least one element (the executable).
func NewCLIProvider(descriptor Descriptor) *CLIProvider {
	return &CLIProvider{descriptor: descriptor}
}

func (p *CLIProvider) Name() string { return p.descriptor.Name }

func (p *CLIProvider) Descriptor() Descriptor { return p.descriptor }

// Execute runs the configured command once per call, piping the assembled
// prompt on stdin and reading the full response from stdout. Cancellation
// (ctx.Done or the request timeout) kills the subprocess.
func (p *CLIProvider) Execute(ctx context.Context, req ExecutionRequest) (ExecutionResponse, error) {
	timeout := p.descriptor.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if len(p.descriptor.Command) == 0 {
		return ExecutionResponse{}, classifyProviderError(p.descriptor.Name, errCommandNotConfigured(p.descriptor.Name))
	}

	args := append([]string(nil), p.descriptor.Command[1:]...)
	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}

	cmd := exec.CommandContext(runCtx, p.descriptor.Command[0], args...)

	prompt := buildPrompt(req)
	cmd.Stdin = strings.NewReader(prompt)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	latency := time.Since(start)

	if err != nil {
		combined := strings.TrimSpace(stderr.String())
		if combined == "" {
			combined = err.Error()
		}
		return ExecutionResponse{}, classifyProviderError(p.descriptor.Name, execError{msg: combined})
	}

	content := strings.TrimRight(stdout.String(), "\n")
	if req.OnToken != nil && content != "" {
		req.OnToken(content)
	}

	return ExecutionResponse{
		Content:      content,
		Model:        req.Model,
		ProviderName: p.descriptor.Name,
		LatencyMs:    latency.Milliseconds(),
		FinishReason: "stop",
	}, nil
}

// IsAvailable runs a cheap version probe rather than a full generation.
func (p *CLIProvider) IsAvailable(ctx context.Context) bool {
	if len(p.descriptor.Command) == 0 {
		return false
	}
	versionArg := p.descriptor.VersionArg
	if versionArg == "" {
		versionArg = "--version"
	}
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(probeCtx, p.descriptor.Command[0], versionArg)
	return cmd.Run() == nil
}

// Close is a no-op: each Execute spawns and reaps its own subprocess, so
// there is no pooled resource to release.
func (p *CLIProvider) Close() error { return nil }

func buildPrompt(req ExecutionRequest) string {
	var b strings.Builder
	if req.SystemPrompt != "" {
		b.WriteString(req.SystemPrompt)
		b.WriteString("\n\n")
	}
	b.WriteString(req.Prompt)
	return b.String()
}

type execError struct{ msg string }

func (e execError) Error() string { return e.msg }

func errCommandNotConfigured(name string) error {
	return execError{msg: "provider " + name + " has no command configured"}
}
