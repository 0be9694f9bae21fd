// Package usage accounts for reasoning-service consumption.
//
// A Meter belongs to one job and is written only by that job's evaluations.
// When the job finishes its totals are merged into the process-wide Session
// in one step, so the session total never reflects half of a job. Prices are
// per million tokens and resolved per model by Pricing.
package usage
