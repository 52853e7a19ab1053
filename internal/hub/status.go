package hub

import "fmt"

type PeerState int32

const (
	PeerIdle PeerState = iota
	PeerConnecting
	PeerUp
	PeerDown
	PeerStopped
)

func (s PeerState) String() string {
	switch s {
	case PeerIdle:
		return "idle"
	case PeerConnecting:
		return "connecting"
	case PeerUp:
		return "up"
	case PeerDown:
		return "down"
	case PeerStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// PeerStatus returns the current state of every configured peer by name.
func (h *Hub) PeerStatus() map[string]PeerState {
	out := make(map[string]PeerState, len(h.peers))
	for _, d := range h.peers {
		if v, ok := h.status.Load(d.Name()); ok {
			out[d.Name()] = v.(PeerState)
		}
	}
	return out
}

// Rejected returns how many peer packets the device refused to accept.
func (h *Hub) Rejected() uint64 {
	return h.rejected.Load()
}

// Health reports peer states for the /health endpoint.
func (h *Hub) Health() map[string]any {
	peers := make(map[string]string, len(h.peers))
	for name, s := range h.PeerStatus() {
		peers[name] = s.String()
	}
	return map[string]any{
		"peers":       peers,
		"subscribers": h.bc.Subscribers(),
		"published":   h.bc.Published(),
		"rejected":    h.rejected.Load(),
	}
}
