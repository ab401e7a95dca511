// Package auth verifies bearer tokens for the telemetry endpoints.
//
// Tokens are JWTs signed with HS256 (shared secret) or RS256 (PEM public
// key). A token must carry a subject and at least one known scope; the
// telemetry scope grants /ws and the read endpoints. Browsers that cannot
// set headers on a WebSocket upgrade may pass the token as access_token.
package auth
