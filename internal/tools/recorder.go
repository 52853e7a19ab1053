package tools

import (
	"context"
	"strings"
	"sync"
)

// Recorder is a CommandRunner that records invocations instead of running them.
// Fail maps a command line prefix to the error returned for it.
type Recorder struct {
	mu    sync.Mutex
	calls []string
	Fail  map[string]error
}

func (r *Recorder) Run(_ context.Context, name string, args ...string) ([]byte, []byte, int32, error) {
	line := strings.Join(append([]string{name}, args...), " ")
	r.mu.Lock()
	r.calls = append(r.calls, line)
	fail := r.Fail
	r.mu.Unlock()
	for prefix, err := range fail {
		if strings.HasPrefix(line, prefix) {
			return nil, []byte(err.Error()), 1, err
		}
	}
	return nil, nil, 0, nil
}

// Calls returns the recorded command lines in order.
func (r *Recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}
