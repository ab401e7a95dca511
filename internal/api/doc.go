// Package api implements the HTTP surface of opsradar.
//
// Poll endpoints return their payloads bare so dashboards can consume them
// directly:
//
//	GET /api/simulation-data  dispatch map {orders, riders, latest_dispatch?}
//	GET /api/telemetry        one telemetry frame {aiStatus, taskStats}
//
// Operational endpoints use the envelope {result, data, correlationId}:
//
//	GET /api/health
//	GET /api/capabilities
//	GET /api/sessions
//	GET /api/dispatches?limit=N
//
// Errors always use the envelope {result:"error", code, message, details,
// correlationId}. /ws and /metrics are mounted from handlers supplied by the
// caller.
package api
