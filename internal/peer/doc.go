// Package peer owns the immutable description of one configured transport endpoint.
//
// Ownership boundary:
// - peer kind tag and shared options
// - allowed-range policy (AllowList)
// - reconnect policy carried from config
package peer
