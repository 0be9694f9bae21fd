// Package clinical provides read-only access to clinical trial source data
// and the tool catalogue the reasoning service uses to query it.
//
// # Library
//
// Library is the query interface over subjects, visits, laboratory results,
// ECGs, adverse events, medical history, concomitant medications, and tumor
// assessments. SQLStore implements it over the trial database using the
// "sqlite" (modernc.org/sqlite), "sqlite3" (mattn/go-sqlite3), or "mysql"
// drivers. MemoryLibrary is an in-memory implementation for fixtures.
//
// Every record type has an Evidence method that renders it as a line that
// can be quoted verbatim in a rule result.
//
// # Tools
//
// Toolbox exposes eight named tools (check_medical_history, check_conmeds,
// check_lab_threshold, get_ecg_results, get_tumor_assessments,
// get_adverse_events, get_labs, get_visits). Tool calls are always scoped to
// the subject under evaluation.
package clinical
