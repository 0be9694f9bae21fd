// Package server provides the HTTP API of TrialMonitor.
//
// The API submits monitoring jobs, reports their progress, and serves the
// run ledger and the current violation index:
//
//	POST /api/evaluate/batch                          submit a job (202)
//	GET  /api/evaluate/batch/{job_id}                 job progress
//	POST /api/evaluate/batch/{job_id}/cancel          stop dispatching subjects
//	POST /api/evaluate/subject/{subject_id}           evaluate one subject, wait
//	POST /api/evaluate/subject/{subject_id}/rule/{rule_id}
//	GET  /api/jobs                                    known jobs, newest first
//	GET  /api/results                                 stored runs, newest first
//	GET  /api/results/{job_id}                        one run record
//	GET  /api/results/{job_id}/violations             violations of one run
//	GET  /api/violations                              current violations (json|csv)
//	GET  /api/subjects/{subject_id}/violations        current violations of a subject
//	GET  /api/rules                                   loaded rules and config errors
//	GET  /api/usage                                   session reasoning usage
//	POST /api/usage/reset                             clear session usage
//
// plus /health, /ready, /version and the Prometheus metrics path.
//
// Errors are returned as
//
//	{"error": {"code": "subject_busy", "message": "..."}}
//
// with 400 for invalid requests, 404 for unknown jobs or runs, 409 when a
// subject already has a job in flight, and 503 while shutting down.
package server
