// Package httpapi exposes snippet execution over plain HTTP.
//
// Routes:
//
//	POST /api/execute   {"code": "..."} -> {"status": "...", "output": "..."}
//	GET  /healthz       liveness probe
//
// Malformed requests are rejected with 400 and an Error result before any
// worker is spawned. Every other outcome, including snippet faults and
// timeouts, is a 200 carrying the executor's result as-is.
package httpapi
