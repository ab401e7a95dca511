// Package broadcast drives the single shared push timer.
//
// One Scheduler runs per process. It ticks immediately on start and then
// every configured interval; each tick generates one snapshot and hands it to
// the session registry for fan-out. A failed generation skips the tick.
package broadcast
