package llm

import (
	"context"
	"encoding/json"
	"strings"
)

// DeterministicGateway is an offline Gateway used when LLM_RUNTIME_MODE is
// "deterministic" — every call returns a fixed, schema-valid response
// instead of reaching a vendor, so the orchestration engine's own logic
// (persistence, reconciliation, posting) can run end to end without a live
// model dependency.
type DeterministicGateway struct{}

// NewDeterministicGateway builds a DeterministicGateway.
func NewDeterministicGateway() *DeterministicGateway {
	return &DeterministicGateway{}
}

// Complete returns a canned, schema-valid JSON payload. The specific
// fields returned depend on which stage is calling (LLM1 vs LLM2),
// inferred from whether the system prompt mentions "accept", "deny" or
// "suporte" (LLM2), so a single deterministic gateway can serve both call sites in
// tests and in LLM_RUNTIME_MODE=deterministic deployments.
func (g *DeterministicGateway) Complete(_ context.Context, req CompletionRequest) (CompletionResponse, error) {
	var payload map[string]any
	if containsLLM2Markers(req.SystemPrompt) {
		payload = map[string]any{
			"schema_version": "1.1",
			"case_id":        "",
			"suggestion":     "accept",
			"policy_alignment": map[string]any{
				"excluded_request": false,
				"labs_ok":           true,
				"ecg_ok":            true,
				"pediatric_flag":    false,
				"notes":             "",
			},
			"confidence": 0.5,
		}
	} else {
		payload = map[string]any{
			"schema_version": "1.1",
			"eda": map[string]any{"indication_category": "unknown"},
			"policy_precheck": map[string]any{
				"excluded_from_eda_flow": false,
				"labs_required":          false,
				"labs_pass":              true,
				"ecg_required":           false,
				"ecg_present":            true,
				"pediatric_flag":         false,
			},
		}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return CompletionResponse{}, err
	}
	return CompletionResponse{RawText: string(raw), ModelName: "deterministic"}, nil
}

func containsLLM2Markers(systemPrompt string) bool {
	return strings.Contains(systemPrompt, "accept") || strings.Contains(systemPrompt, "deny") || strings.Contains(systemPrompt, "suporte")
}
