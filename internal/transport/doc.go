// Package transport opens the byte stream behind each peer kind.
//
// Ownership boundary:
// - char and midi serial devices
// - outbound tcp and single-accept listening tcp
// - reconnect backoff timing
package transport
