// Package ws serves the push path: each WebSocket connection on /ws becomes
// one hub session that receives a text frame per broadcast.
//
// The protocol is server to client only. A client data message closes the
// connection with StatusPolicyViolation.
package ws
