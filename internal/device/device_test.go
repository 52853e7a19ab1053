package device

import (
	"bytes"
	"context"
	"errors"
	"net/netip"
	"testing"

	"github.com/danmuck/tunplex/internal/testutil/testlog"
	"github.com/danmuck/tunplex/internal/tools"
)

type fakeDevice struct {
	bytes.Buffer
	name   string
	closed bool
}

func (f *fakeDevice) Name() string { return f.name }
func (f *fakeDevice) Close() error { f.closed = true; return nil }

func testConfig() Config {
	return Config{Name: "tunplex0", Address: netip.MustParsePrefix("10.0.0.1/24"), MTU: 1400}
}

func TestOpenConfiguresInterface(t *testing.T) {
	testlog.Start(t)

	rec := &tools.Recorder{}
	fake := &fakeDevice{name: "tunplex0"}
	dev, err := open(context.Background(), testConfig(), rec, func(string) (Device, error) { return fake, nil })
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if dev.Name() != "tunplex0" {
		t.Fatalf("unexpected name: %s", dev.Name())
	}
	want := []string{
		"ip link set dev tunplex0 mtu 1400",
		"ip addr add 10.0.0.1/24 dev tunplex0",
		"ip link set dev tunplex0 up",
	}
	calls := rec.Calls()
	if len(calls) != len(want) {
		t.Fatalf("unexpected calls: %q", calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("call %d: got=%q want=%q", i, calls[i], want[i])
		}
	}
}

func TestOpenClosesOnConfigureFailure(t *testing.T) {
	testlog.Start(t)

	rec := &tools.Recorder{Fail: map[string]error{"ip addr add": errors.New("RTNETLINK answers: File exists")}}
	fake := &fakeDevice{name: "tunplex0"}
	_, err := open(context.Background(), testConfig(), rec, func(string) (Device, error) { return fake, nil })
	var cmdErr *tools.CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("expected *tools.CommandError, got %v", err)
	}
	if !fake.closed {
		t.Fatalf("device should be closed after a failed configure step")
	}
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	testlog.Start(t)

	cfg := testConfig()
	cfg.MTU = 0
	_, err := open(context.Background(), cfg, &tools.Recorder{}, func(string) (Device, error) {
		t.Fatalf("opener should not be called")
		return nil, nil
	})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
