// Package lifecycle runs the interface's post-up and post-down hooks.
package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/danmuck/tunplex/internal/logging"
	"github.com/danmuck/tunplex/internal/tools"
	"github.com/rs/zerolog"
)

// HookTimeout bounds a single hook command.
const HookTimeout = 30 * time.Second

// Hooks are shell command lines. Empty lines are skipped.
type Hooks struct {
	PostUp   string
	PostDown string
}

// Scope owns the hooks for one run. Close runs post-down at most once.
type Scope struct {
	hooks  Hooks
	runner tools.CommandRunner
	log    zerolog.Logger

	upOnce   sync.Once
	downOnce sync.Once
}

func New(hooks Hooks, runner tools.CommandRunner) *Scope {
	if runner == nil {
		runner = tools.ExecRunner{}
	}
	return &Scope{
		hooks:  hooks,
		runner: runner,
		log:    logging.Component("lifecycle"),
	}
}

// Up runs the post-up hook. Failures are logged and never abort startup.
func (s *Scope) Up(ctx context.Context) {
	s.upOnce.Do(func() {
		s.run(ctx, "post-up", s.hooks.PostUp)
	})
}

// Close runs the post-down hook on the first call and is a no-op afterwards.
func (s *Scope) Close() error {
	s.downOnce.Do(func() {
		s.run(context.Background(), "post-down", s.hooks.PostDown)
	})
	return nil
}

func (s *Scope) run(ctx context.Context, hook, line string) {
	if line == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, HookTimeout)
	defer cancel()
	out, err := tools.Shell(ctx, s.runner, line)
	if err != nil {
		s.log.Error().Err(err).Str("hook", hook).Msg("hook failed")
		return
	}
	s.log.Info().Str("hook", hook).Int("stdout_bytes", len(out)).Msg("hook ran")
}
