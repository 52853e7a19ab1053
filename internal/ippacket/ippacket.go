// Package ippacket reads addressing fields out of raw IP packets from the TUN device.
package ippacket

import (
	"errors"
	"fmt"
	"net"
	"net/netip"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

var (
	ErrEmpty      = errors.New("ippacket: empty packet")
	ErrNotIP      = errors.New("ippacket: unknown ip version")
	ErrBadAddress = errors.New("ippacket: unparseable address")
)

// Version returns the IP version nibble of pkt.
func Version(pkt []byte) (int, error) {
	if len(pkt) == 0 {
		return 0, ErrEmpty
	}
	return int(pkt[0] >> 4), nil
}

// Destination returns the destination address of an IPv4 or IPv6 packet.
func Destination(pkt []byte) (netip.Addr, error) {
	_, dst, err := Addresses(pkt)
	return dst, err
}

// Addresses returns source and destination of an IPv4 or IPv6 packet.
func Addresses(pkt []byte) (netip.Addr, netip.Addr, error) {
	v, err := Version(pkt)
	if err != nil {
		return netip.Addr{}, netip.Addr{}, err
	}
	var src, dst net.IP
	switch v {
	case ipv4.Version:
		h, err := ipv4.ParseHeader(pkt)
		if err != nil {
			return netip.Addr{}, netip.Addr{}, fmt.Errorf("ippacket: ipv4: %w", err)
		}
		src, dst = h.Src, h.Dst
	case ipv6.Version:
		h, err := ipv6.ParseHeader(pkt)
		if err != nil {
			return netip.Addr{}, netip.Addr{}, fmt.Errorf("ippacket: ipv6: %w", err)
		}
		src, dst = h.Src, h.Dst
	default:
		return netip.Addr{}, netip.Addr{}, fmt.Errorf("%w: %d", ErrNotIP, v)
	}
	s, ok := netip.AddrFromSlice(src)
	if !ok {
		return netip.Addr{}, netip.Addr{}, ErrBadAddress
	}
	d, ok := netip.AddrFromSlice(dst)
	if !ok {
		return netip.Addr{}, netip.Addr{}, ErrBadAddress
	}
	return s.Unmap(), d.Unmap(), nil
}
