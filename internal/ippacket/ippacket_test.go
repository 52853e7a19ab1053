package ippacket

import (
	"errors"
	"net/netip"
	"testing"

	"github.com/danmuck/tunplex/internal/testutil/packettest"
)

func TestDestinationIPv4(t *testing.T) {
	pkt := packettest.IPv4(netip.MustParseAddr("10.0.0.1"), netip.MustParseAddr("10.0.0.5"), []byte("hi"))
	src, dst, err := Addresses(pkt)
	if err != nil {
		t.Fatalf("addresses: %v", err)
	}
	if src != netip.MustParseAddr("10.0.0.1") || dst != netip.MustParseAddr("10.0.0.5") {
		t.Fatalf("unexpected addresses: src=%s dst=%s", src, dst)
	}
}

func TestDestinationIPv6(t *testing.T) {
	pkt := make([]byte, 40)
	pkt[0] = 0x60
	want := netip.MustParseAddr("fd00::5")
	b := want.As16()
	copy(pkt[24:40], b[:])
	dst, err := Destination(pkt)
	if err != nil {
		t.Fatalf("destination: %v", err)
	}
	if dst != want {
		t.Fatalf("unexpected destination: %s", dst)
	}
}

func TestDestinationRejectsGarbage(t *testing.T) {
	if _, err := Destination(nil); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
	if _, err := Destination([]byte{0x10, 0, 0}); !errors.Is(err, ErrNotIP) {
		t.Fatalf("expected ErrNotIP, got %v", err)
	}
	if _, err := Destination([]byte{0x45, 0, 0}); err == nil {
		t.Fatalf("expected short ipv4 header error")
	}
}
