package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/tunplex/internal/config"
	"github.com/danmuck/tunplex/internal/device"
	"github.com/danmuck/tunplex/internal/hub"
	"github.com/danmuck/tunplex/internal/lifecycle"
	"github.com/danmuck/tunplex/internal/logging"
	"github.com/danmuck/tunplex/internal/observability"
	"github.com/danmuck/tunplex/internal/tools"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// hookWaitDelay caps how long a cancelled hook may hold its output pipes.
const hookWaitDelay = 5 * time.Second

func newUpCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Create the interface and start moving packets (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUp(cmd.Context(), opts)
		},
	}
}

func runUp(parent context.Context, opts *rootOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := tools.ExecRunner{WaitDelay: hookWaitDelay}
	iface := cfg.Interface

	dev, err := device.Open(ctx, device.Config{Name: iface.Name, Address: iface.Address, MTU: iface.MTU}, runner)
	if err != nil {
		return err
	}
	defer dev.Close()

	scope := lifecycle.New(lifecycle.Hooks{PostUp: iface.PostUp, PostDown: iface.PostDown}, runner)
	defer scope.Close()
	scope.Up(ctx)

	return serve(ctx, cfg, dev, scope)
}

// serve runs the hub and the optional metrics server until ctx is cancelled.
// Post-down runs while the interface still exists; the hub closes the device after it.
func serve(ctx context.Context, cfg config.Config, dev device.Device, scope *lifecycle.Scope) error {
	log := logging.Component("tunplex")
	iface := cfg.Interface

	h, err := hub.New(dev, cfg.Peers, hub.Options{
		BufferSize:     iface.Buffer,
		IPFiltering:    iface.IPFiltering,
		BroadcastDepth: iface.BroadcastDepth,
		AggregateDepth: iface.AggregateDepth,
		Transport:      iface.Transport(),
		OnStop: func() {
			_ = scope.Close()
		},
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if iface.Metrics != "" {
		ln, err := net.Listen("tcp", iface.Metrics)
		if err != nil {
			return fmt.Errorf("metrics listen %s: %w", iface.Metrics, err)
		}
		log.Info().Str("addr", ln.Addr().String()).Msg("metrics server listening")
		g.Go(func() error {
			return observability.Serve(gctx, ln, h.Health)
		})
	}
	g.Go(func() error {
		return h.Run(gctx)
	})

	log.Info().Str("interface", dev.Name()).Int("peers", len(cfg.Peers)).Msg("tunplex up")
	err = g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		log.Info().Msg("shutting down")
		return nil
	}
	return err
}
