// Package llm holds the LLM orchestration glue: the deterministic policy
// reconciliation that runs with no LLM in the loop, and the Gateway port
// fronting the actual vendor call.
package llm

// PrecheckInput carries the facts LLM1 extracted about the case that the
// deterministic reconciliation step checks LLM2's suggestion against.
type PrecheckInput struct {
	ExcludedFromEDAFlow bool
	IndicationCategory  string
	LabsRequired        bool
	LabsPass            bool
	ECGRequired         bool
	ECGPresent          bool
	PediatricFlag       bool
}

// SuggestionInput carries LLM2's proposed action and policy-alignment
// self-assessment, before reconciliation.
type SuggestionInput struct {
	Suggestion      string // accept | deny
	PolicyAlignment PolicyAlignment
}

// PolicyAlignment is LLM2's self-reported alignment with policy facts.
type PolicyAlignment struct {
	ExcludedRequest bool
	LabsOK          bool
	ECGOk           bool
	PediatricFlag   bool
	Notes           string
}

// Contradiction records one forced override the reconciliation pass made
// to LLM2's proposal, for audit and monitoring display.
type Contradiction struct {
	Rule           string
	Field          string
	PreviousValue  any
	ReconciledValue any
}

// Reconciled is the policy-reconciled output persisted and posted
// downstream in place of LLM2's raw proposal.
type Reconciled struct {
	Suggestion      string
	PolicyAlignment PolicyAlignment
}

// Reconcile applies the fixed, deterministic policy rules to LLM2's
// proposal given LLM1's precheck facts, producing the final suggestion and
// a list of any forced overrides. It performs no I/O and calls no LLM.
func Reconcile(precheck PrecheckInput, suggestion SuggestionInput) (Reconciled, []Contradiction) {
	alignment := suggestion.PolicyAlignment
	finalSuggestion := suggestion.Suggestion
	var contradictions []Contradiction

	force := func(rule, field string, previous, reconciled any) {
		contradictions = append(contradictions, Contradiction{
			Rule: rule, Field: field, PreviousValue: previous, ReconciledValue: reconciled,
		})
	}

	anyForcedNo := false

	if precheck.ExcludedFromEDAFlow {
		if finalSuggestion != "deny" {
			force("excluded_from_eda_flow", "suggestion", finalSuggestion, "deny")
			finalSuggestion = "deny"
		}
		if !alignment.ExcludedRequest {
			force("excluded_from_eda_flow", "excluded_request", alignment.ExcludedRequest, true)
			alignment.ExcludedRequest = true
		}
	}

	if precheck.LabsRequired && !precheck.LabsPass {
		if alignment.LabsOK {
			force("labs_pass_false", "labs_ok", alignment.LabsOK, false)
			alignment.LabsOK = false
		}
		anyForcedNo = true
	}

	if precheck.ECGRequired && !precheck.ECGPresent {
		if alignment.ECGOk {
			force("ecg_required_absent", "ecg_ok", alignment.ECGOk, false)
			alignment.ECGOk = false
		}
		anyForcedNo = true
	}

	if anyForcedNo && finalSuggestion != "deny" {
		force("required_precheck_forced_no", "suggestion", finalSuggestion, "deny")
		finalSuggestion = "deny"
	}

	return Reconciled{Suggestion: finalSuggestion, PolicyAlignment: alignment}, contradictions
}
