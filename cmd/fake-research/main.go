// ABOUTME: Minimal fake research backend for manual and E2E testing of research-flow
// ABOUTME: Usage: fake-research [-addr localhost:8000] [-delay 500ms] [-rejections 1] [-no-inline]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/2389/research-flow/internal/logging"
	"github.com/2389/research-flow/internal/mockbackend"
)

func main() {
	addr := flag.String("addr", "localhost:8000", "HTTP listen address")
	delay := flag.Duration("delay", 500*time.Millisecond, "pause between progress events")
	rejections := flag.Int("rejections", 1, "reviews that fail before one passes")
	maxIterations := flag.Int("max-iterations", 3, "review budget before the run fails")
	noInline := flag.Bool("no-inline", false, "leave the report out of terminal events")
	reportPath := flag.String("report", "", "markdown file served as the synthesis report")
	keepalive := flag.Duration("keepalive", mockbackend.DefaultKeepaliveInterval, "server ping interval")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(logging.NewColorHandler(os.Stderr, level))

	flow := mockbackend.FlowOptions{
		StepDelay:        *delay,
		Rejections:       *rejections,
		MaxIterations:    *maxIterations,
		OmitInlineReport: *noInline,
	}
	if *reportPath != "" {
		data, err := os.ReadFile(*reportPath)
		if err != nil {
			log.Fatal(err)
		}
		flow.Report = string(data)
	}

	if err := run(*addr, flow, *keepalive, logger); err != nil {
		log.Fatal(err)
	}
}

func run(addr string, flow mockbackend.FlowOptions, keepalive time.Duration, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	backend := mockbackend.New(mockbackend.Options{
		Flow:              flow,
		KeepaliveInterval: keepalive,
		Logger:            logger,
	})
	defer backend.Close()

	srv := &http.Server{
		Addr:              addr,
		Handler:           backend.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		backend.DropConnections()
		_ = srv.Shutdown(shutdownCtx)
	}()

	fmt.Fprintf(os.Stderr, "fake research backend on http://%s (progress: ws://%s%s)\n", addr, addr, mockbackend.ProgressPath)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving: %w", err)
	}
	return nil
}
