// Package engine evaluates protocol rules for trial subjects.
//
// Each rule is routed by its evaluation_type. Deterministic rules are
// checked directly against the clinical library; rules that need clinical
// judgment run a bounded tool-use conversation with the reasoning service.
// Both paths produce a RuleResult whose content fields are checked against
// the rule's template before the result is accepted.
//
// # Tool-use state machine
//
//	INIT -> AWAITING_MODEL -> {TOOL_REQUESTED -> TOOL_EXECUTING -> AWAITING_MODEL}*
//	     -> FINAL_ANSWER -> DONE
//	MAX_ROUNDS_EXCEEDED -> DONE_DEGRADED
//	ERROR -> DONE_ERROR
//
// Rounds and tool calls are capped per evaluation. A malformed final answer
// gets one corrective re-prompt; a second failure is an error result.
package engine
