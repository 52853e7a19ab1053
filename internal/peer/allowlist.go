package peer

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/libp2p/go-cidranger"
)

// AllowList answers whether an address falls inside any of a peer's allowed ranges.
// Any containing range qualifies; there is no longest-match.
type AllowList struct {
	ranger cidranger.Ranger
	size   int
}

func NewAllowList(prefixes []netip.Prefix) (*AllowList, error) {
	r := cidranger.NewPCTrieRanger()
	for _, p := range prefixes {
		if !p.IsValid() {
			return nil, fmt.Errorf("peer: invalid allowed range %q", p.String())
		}
		addr, bits := p.Masked().Addr(), p.Bits()
		if addr.Is4In6() {
			addr, bits = addr.Unmap(), bits-96
			if bits < 0 {
				return nil, fmt.Errorf("peer: invalid allowed range %q", p.String())
			}
		}
		ipnet := net.IPNet{
			IP:   net.IP(addr.AsSlice()),
			Mask: net.CIDRMask(bits, addr.BitLen()),
		}
		if err := r.Insert(cidranger.NewBasicRangerEntry(ipnet)); err != nil {
			return nil, fmt.Errorf("peer: allowed range %s: %w", p, err)
		}
	}
	return &AllowList{ranger: r, size: len(prefixes)}, nil
}

func (a *AllowList) Len() int {
	if a == nil {
		return 0
	}
	return a.size
}

// Contains reports whether addr is inside at least one allowed range.
func (a *AllowList) Contains(addr netip.Addr) bool {
	if a == nil || !addr.IsValid() {
		return false
	}
	ok, err := a.ranger.Contains(net.IP(addr.Unmap().AsSlice()))
	return err == nil && ok
}
