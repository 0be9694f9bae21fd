// Package health provides liveness, readiness and version endpoints.
//
// Liveness (/health) only confirms the process is serving HTTP. Readiness
// (/ready) runs the registered component checks concurrently, each under its
// own timeout, and answers 503 when any fails. TrialMonitor registers:
//
//   - clinical_store: the clinical data tool library answers Ping
//   - ledger: the run ledger can list runs
//   - rules: the rule registry holds at least one active rule
//
// # Usage
//
//	checker := health.New(5 * time.Second)
//	checker.RegisterCheck("clinical_store", health.PingCheck(library))
//	checker.RegisterCheck("ledger", health.LedgerCheck(l))
//	health.Register(mux, checker, version, commit, buildTime)
package health
