// Package audit writes an append-only JSON Lines trail of telemetry session
// lifecycle and dispatch decisions.
//
// One entry per line: ts, action, subject, target, params, outcome, code.
// Files rotate by size through lumberjack.
package audit
