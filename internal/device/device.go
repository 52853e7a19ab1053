// Package device creates and configures the TUN interface the hub reads and writes.
package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"strconv"

	"github.com/danmuck/tunplex/internal/logging"
	"github.com/danmuck/tunplex/internal/tools"
	"github.com/songgao/water"
)

var ErrInvalidConfig = errors.New("device: invalid config")

// Device is a packet device: every Read returns one packet and every Write sends one.
type Device interface {
	io.ReadWriteCloser
	Name() string
}

// Config describes the interface to create.
type Config struct {
	Name    string
	Address netip.Prefix
	MTU     int
}

// Opener creates the underlying TUN. It is swapped out in tests.
type Opener func(name string) (Device, error)

func openWater(name string) (Device, error) {
	cfg := water.Config{DeviceType: water.TUN}
	cfg.Name = name
	iface, err := water.New(cfg)
	if err != nil {
		return nil, err
	}
	return iface, nil
}

// Open creates the TUN device and applies MTU, address and link state with ip(8).
func Open(ctx context.Context, cfg Config, runner tools.CommandRunner) (Device, error) {
	return open(ctx, cfg, runner, openWater)
}

func open(ctx context.Context, cfg Config, runner tools.CommandRunner, opener Opener) (Device, error) {
	if cfg.Name == "" || !cfg.Address.IsValid() || cfg.MTU <= 0 {
		return nil, fmt.Errorf("%w: name=%q address=%s mtu=%d", ErrInvalidConfig, cfg.Name, cfg.Address, cfg.MTU)
	}
	if runner == nil {
		runner = tools.ExecRunner{}
	}
	dev, err := opener(cfg.Name)
	if err != nil {
		return nil, fmt.Errorf("device: create %s: %w", cfg.Name, err)
	}
	name := dev.Name()
	steps := [][]string{
		{"link", "set", "dev", name, "mtu", strconv.Itoa(cfg.MTU)},
		{"addr", "add", cfg.Address.String(), "dev", name},
		{"link", "set", "dev", name, "up"},
	}
	for _, args := range steps {
		if _, err := tools.Exec(ctx, runner, "ip", args...); err != nil {
			_ = dev.Close()
			return nil, fmt.Errorf("device: configure %s: %w", name, err)
		}
	}
	log := logging.Component("device")
	log.Info().
		Str("name", name).
		Str("address", cfg.Address.String()).
		Int("mtu", cfg.MTU).
		Msg("interface up")
	return dev, nil
}
