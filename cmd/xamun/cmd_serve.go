package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/xamun-dev/xamun/internal/jsonrpc"
)

// shutdownTimeout bounds how long serve waits for background work on exit.
const shutdownTimeout = 10 * time.Second

func newServeCommand(opts *rootOptions) *cobra.Command {
	var tcpAddr string
	var tcpAllowRemote bool
	var engine string
	var model string
	var journal bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the JSON-RPC 2.0 host for a front end",
		Long: `Start the JSON-RPC 2.0 host for a front end.

By default, the host communicates over stdin/stdout using newline-delimited JSON.
Every inbound command is a method named after its type (newTask, askResponse,
cancelTask, deleteTaskWithId, ...). Outbound messages (stateSnapshot, action,
catalog, localModels, selectedImages) are sent as notifications.

Use --tcp to listen on TCP instead (useful for debugging).
TCP defaults to loopback (127.0.0.1) for security. Use --tcp-allow-remote to bind
to all interfaces.

Query methods:
  getState    Current state snapshot
  getHistory  Task history, newest first
  getTask     One task's history entry and transcript`,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := opts.openHost()
			if err != nil {
				return err
			}
			defer h.Close() //nolint:errcheck

			if err := h.enableJournal(journal); err != nil {
				return fmt.Errorf("opening journal: %w", err)
			}
			if engine == "" {
				engine = h.cfg.Defaults.Engine
			}
			if model == "" {
				model = h.cfg.Defaults.Model
			}

			engines, err := newEngines(engine, model, h.logger)
			if err != nil {
				return err
			}
			publisher := jsonrpc.NewPublisher(0, h.logger)
			orch, err := h.newOrchestrator(engines, publisher, engine)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := orch.Open(ctx); err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
				defer cancel()
				if err := orch.Close(shutdownCtx); err != nil {
					h.logger.Warn("host did not shut down cleanly", "error", err)
				}
				if err := engines.Shutdown(shutdownCtx); err != nil {
					h.logger.Warn("engine shutdown failed", "error", err)
				}
			}()

			registry := jsonrpc.NewMethodRegistry()
			jsonrpc.RegisterHandlers(registry, orch)
			server := jsonrpc.NewServer(registry, h.logger).WithPublisher(publisher)

			if tcpAddr != "" {
				tcpAddr = resolveTCPAddr(tcpAddr, tcpAllowRemote, h.logger)

				listener, err := jsonrpc.NewTCPListener(tcpAddr, server)
				if err != nil {
					return fmt.Errorf("failed to start TCP server: %w", err)
				}
				go func() {
					<-ctx.Done()
					listener.Close() //nolint:errcheck
				}()
				fmt.Fprintf(cmd.ErrOrStderr(), "JSON-RPC host listening on %s\n", listener.Addr())
				if err := listener.Serve(); err != nil && ctx.Err() == nil {
					return err
				}
				return nil
			}

			fmt.Fprintln(cmd.ErrOrStderr(), "JSON-RPC host running on stdio")
			done := make(chan struct{})
			go func() {
				defer close(done)
				server.ServeStdio(cmd.InOrStdin(), cmd.OutOrStdout())
			}()
			select {
			case <-done:
			case <-ctx.Done():
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&tcpAddr, "tcp", "", "TCP address to listen on (e.g., :9000)")
	cmd.Flags().BoolVar(&tcpAllowRemote, "tcp-allow-remote", false,
		"Allow binding to non-loopback addresses (WARNING: exposes the host to the network with no authentication)")
	cmd.Flags().StringVar(&engine, "engine", "", "Default executor provider when none is configured: copilot or mock (default from .xamun.yaml)")
	cmd.Flags().StringVar(&model, "model", "", "Default model for the copilot engine (default from .xamun.yaml)")
	cmd.Flags().BoolVar(&journal, "session-log", false, "Record host lifecycle events to a journal file")

	return cmd
}

// resolveTCPAddr ensures TCP addresses default to loopback unless --tcp-allow-remote is set.
func resolveTCPAddr(addr string, allowRemote bool, logger *slog.Logger) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		// Likely just a port like "9000"; treat as ":9000".
		host = ""
		port = addr
	}

	if allowRemote {
		logger.Warn("TCP host binding to all interfaces, no authentication is provided", "address", addr)
		return addr
	}

	if host == "" || host == "0.0.0.0" || host == "::" {
		return net.JoinHostPort("127.0.0.1", port)
	}
	return addr
}
