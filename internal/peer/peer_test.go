package peer

import (
	"errors"
	"net/netip"
	"testing"

	"github.com/danmuck/tunplex/internal/protocol/frame"
)

func mustPrefixes(t *testing.T, raw ...string) []netip.Prefix {
	t.Helper()
	out := make([]netip.Prefix, 0, len(raw))
	for _, r := range raw {
		p, err := netip.ParsePrefix(r)
		if err != nil {
			t.Fatalf("parse prefix %q: %v", r, err)
		}
		out = append(out, p)
	}
	return out
}

func TestNewDefaultsTransformsToNone(t *testing.T) {
	d, err := New(Spec{
		Kind:    KindSockListen,
		Options: Options{Path: " 127.0.0.1:9000 ", AllowedIPs: mustPrefixes(t, "0.0.0.0/0")},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if d.Path() != "127.0.0.1:9000" {
		t.Fatalf("unexpected path: %q", d.Path())
	}
	if d.Name() != "sock-listen:127.0.0.1:9000" {
		t.Fatalf("unexpected name: %q", d.Name())
	}
	if d.Compression() != frame.CompressionNone || d.Encryption() != frame.EncryptionNone {
		t.Fatalf("expected none transforms, got %s/%s", d.Compression(), d.Encryption())
	}
}

func TestNewCopiesOverrides(t *testing.T) {
	c := frame.CompressionGzip
	prefixes := mustPrefixes(t, "10.0.0.0/24")
	d, err := New(Spec{
		Kind:    KindChar,
		Options: Options{Path: "/dev/ttyUSB0", AllowedIPs: prefixes, Compression: &c},
		Speed:   57600,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	c = frame.CompressionZstd
	prefixes[0] = netip.MustParsePrefix("192.168.0.0/16")
	if d.Compression() != frame.CompressionGzip {
		t.Fatalf("descriptor changed after construction: %s", d.Compression())
	}
	if d.AllowedIPs()[0] != netip.MustParsePrefix("10.0.0.0/24") {
		t.Fatalf("allowed ips changed after construction: %v", d.AllowedIPs())
	}
	if d.Speed() != 57600 {
		t.Fatalf("unexpected speed: %d", d.Speed())
	}
}

func TestNewValidation(t *testing.T) {
	allowed := mustPrefixes(t, "10.0.0.0/24")
	enc := frame.EncryptionChaCha20Poly1305
	cases := []struct {
		name string
		spec Spec
		want error
	}{
		{"missing path", Spec{Kind: KindSock, Options: Options{AllowedIPs: allowed}}, ErrPathRequired},
		{"missing allowed", Spec{Kind: KindSock, Options: Options{Path: "a:1"}}, ErrAllowedIPRequired},
		{"bad kind", Spec{Kind: Kind(9), Options: Options{Path: "a:1", AllowedIPs: allowed}}, ErrUnknownKind},
		{"speed on sock", Spec{Kind: KindSock, Options: Options{Path: "a:1", AllowedIPs: allowed}, Speed: 9600}, ErrSpeedNotSupported},
		{"missing key", Spec{Kind: KindSock, Options: Options{Path: "a:1", AllowedIPs: allowed, Encryption: &enc}}, ErrKeyRequired},
	}
	for _, tc := range cases {
		_, err := New(tc.spec)
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestAllowListContains(t *testing.T) {
	a, err := NewAllowList(mustPrefixes(t, "10.0.0.0/24", "fd00::/64", "172.16.5.9/32"))
	if err != nil {
		t.Fatalf("new allow list: %v", err)
	}
	cases := map[string]bool{
		"10.0.0.5":        true,
		"10.0.1.5":        false,
		"192.168.1.5":     false,
		"172.16.5.9":      true,
		"172.16.5.10":     false,
		"fd00::1":         true,
		"fd01::1":         false,
		"::ffff:10.0.0.9": true,
	}
	for raw, want := range cases {
		if got := a.Contains(netip.MustParseAddr(raw)); got != want {
			t.Fatalf("contains %s: got %v want %v", raw, got, want)
		}
	}
	if a.Len() != 3 {
		t.Fatalf("unexpected len: %d", a.Len())
	}
	if a.Contains(netip.Addr{}) {
		t.Fatalf("invalid address must not match")
	}
}

func TestAllowListDefaultRoute(t *testing.T) {
	a, err := NewAllowList(mustPrefixes(t, "0.0.0.0/0"))
	if err != nil {
		t.Fatalf("new allow list: %v", err)
	}
	if !a.Contains(netip.MustParseAddr("203.0.113.7")) {
		t.Fatalf("default route should contain every ipv4 address")
	}
	if a.Contains(netip.MustParseAddr("2001:db8::1")) {
		t.Fatalf("ipv4 default route must not contain ipv6 addresses")
	}
}

func TestReconnectPolicyShouldRetry(t *testing.T) {
	p := DefaultReconnectPolicy()
	if p.ShouldRetry(1) {
		t.Fatalf("disabled policy must not retry")
	}
	p.Enabled = true
	if !p.ShouldRetry(100) {
		t.Fatalf("unlimited policy should retry")
	}
	p.MaxAttempts = 3
	if !p.ShouldRetry(2) || p.ShouldRetry(3) {
		t.Fatalf("bounded policy retry mismatch")
	}
}
