package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/roach88/tally/internal/aggregate"
	"github.com/roach88/tally/internal/api"
	"github.com/roach88/tally/internal/engine"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Listen string

	// OnListen is called with the bound address once the listener is open
	// (for testing with --listen 127.0.0.1:0).
	OnListen func(addr net.Addr)
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and apply posted events",
		Long: `Start the HTTP API over the derived ledger state and the DID registry.

Event batches posted to /v1/events are queued on the single-writer engine and
applied in arrival order. Prometheus metrics are served at /metrics.

The server stops on SIGINT or SIGTERM: HTTP connections are drained within
shutdownTimeout, then queued events are applied before exit.

Examples:
  tally serve --db ./tally.db --contracts contracts.yaml
  tally serve --listen :9090 --registry-dir ./registry`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("listen") {
				opts.Config.ListenAddr = opts.Listen
			}
			return runServe(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address (overrides listenAddr)")

	return cmd
}

func runServe(parent context.Context, opts *ServeOptions, cmd *cobra.Command) error {
	logger := opts.Logger
	shutdownTimeout, err := opts.Config.Shutdown()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid config", err)
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	agg, err := newAggregator(opts.RootOptions, aggregate.WithPromRegistry(promReg))
	if err != nil {
		return err
	}
	st, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()
	reg, err := openRegistry(opts.RootOptions)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := reg.Close(); closeErr != nil {
			logger.Error("error closing registry", "error", closeErr)
		}
	}()

	eng, err := engine.New(parent, st, agg, engine.WithLogger(logger))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start engine", err)
	}

	srv := api.New(st, reg,
		api.WithLogger(logger),
		api.WithPrometheus(promReg, promReg),
		api.WithIngest(eng),
	)

	ln, err := net.Listen("tcp", opts.Config.ListenAddr)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}

	// Request contexts derive from streamCtx so long-lived event streams end
	// when shutdown starts; Shutdown alone would wait for them.
	streamCtx, stopStreams := context.WithCancel(context.Background())
	defer stopStreams()
	httpServer := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 60 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return streamCtx },
	}
	httpServer.RegisterOnShutdown(stopStreams)

	signalCtx, signalCtxStop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer signalCtxStop()

	// Engine runs until Stop; it is not tied to signalCtx so queued events
	// are still applied during shutdown.
	engineDone := make(chan error, 1)
	go func() {
		engineDone <- eng.Run(context.Background())
	}()

	httpDone := make(chan error, 1)
	go func() {
		httpDone <- httpServer.Serve(ln)
	}()

	logger.Info("serving HTTP API", "addr", ln.Addr().String(), "db", opts.Config.DatabasePath)
	fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s. Press Ctrl-C to stop.\n", ln.Addr())
	if opts.OnListen != nil {
		opts.OnListen(ln.Addr())
	}

	var serveErr error
	select {
	case <-signalCtx.Done():
		logger.Info("signal received, initiating graceful shutdown")
	case err := <-httpDone:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	eng.Stop()
	if err := <-engineDone; err != nil {
		logger.Error("engine stopped with error", "error", err)
	}
	logger.Info("shutdown complete", "seq", eng.Seq())

	if serveErr != nil {
		return WrapExitError(ExitFailure, "http server error", serveErr)
	}
	return nil
}
