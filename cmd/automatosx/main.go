// Command automatosx is the JSON-RPC stdio process entry point: it reads
// environment toggles once, wires the six core components, and serves
// tool calls over stdin/stdout until the process is signalled to stop.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/automatosx/automatosx/pkg/logger"
	"github.com/automatosx/automatosx/pkg/rpcserver"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := configFromEnv()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		return 1
	}

	level, err := logger.ParseLevel(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	logger.Init(level, os.Stderr, cfg.Logging.Format)
	log := logger.GetLogger()
	log.Debug("starting automatosx", "config", cfg.String())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	kernel, cleanup, err := buildKernel(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize core", "error", err)
		return 1
	}
	defer cleanup()

	srv := rpcserver.New(kernel, log)

	in := bufio.NewScanner(os.Stdin)
	in.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	out := bufio.NewWriter(os.Stdout)

	serveErr := srv.Serve(ctx, in, out)
	switch {
	case serveErr == nil, errors.Is(serveErr, context.Canceled):
		log.Info("shutdown complete")
		return 0
	case errors.Is(serveErr, context.DeadlineExceeded):
		log.Warn("shutdown: cancelled by timeout")
		return 124
	default:
		log.Error("server exited with error", "error", serveErr)
		return 1
	}
}
