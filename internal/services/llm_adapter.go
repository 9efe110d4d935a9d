package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/carlosapgomes/caseflow/internal/db"
	"github.com/carlosapgomes/caseflow/internal/llm"
)

// llm1Response is the schema the llm1_system/llm1_user prompt pair must
// produce: the deterministic precheck facts llm.Reconcile consumes.
type llm1Response struct {
	SchemaVersion string `json:"schema_version"`
	EDA           struct {
		IndicationCategory string `json:"indication_category"`
	} `json:"eda"`
	PolicyPrecheck struct {
		ExcludedFromEDAFlow bool `json:"excluded_from_eda_flow"`
		LabsRequired        bool `json:"labs_required"`
		LabsPass            bool `json:"labs_pass"`
		ECGRequired         bool `json:"ecg_required"`
		ECGPresent          bool `json:"ecg_present"`
		PediatricFlag       bool `json:"pediatric_flag"`
	} `json:"policy_precheck"`
}

// llm2Response is the schema the llm2_system/llm2_user prompt pair must
// produce: LLM2's proposed action and self-reported policy alignment,
// before deterministic reconciliation.
type llm2Response struct {
	SchemaVersion   string `json:"schema_version"`
	Suggestion      string `json:"suggestion"`
	PolicyAlignment struct {
		ExcludedRequest bool   `json:"excluded_request"`
		LabsOK          bool   `json:"labs_ok"`
		ECGOk           bool   `json:"ecg_ok"`
		PediatricFlag   bool   `json:"pediatric_flag"`
		Notes           string `json:"notes"`
	} `json:"policy_alignment"`
}

// GatewayLLM1Service implements LLM1Service against an llm.Gateway, using
// the active llm1_system/llm1_user prompt_templates rows.
type GatewayLLM1Service struct {
	gateway llm.Gateway
	prompts *db.PromptRepository
}

// NewGatewayLLM1Service builds a GatewayLLM1Service.
func NewGatewayLLM1Service(gateway llm.Gateway, prompts *db.PromptRepository) *GatewayLLM1Service {
	return &GatewayLLM1Service{gateway: gateway, prompts: prompts}
}

// Run implements LLM1Service.
func (s *GatewayLLM1Service) Run(ctx context.Context, caseID string, cleanedText string) (LLM1Result, error) {
	sysPrompt, err := s.prompts.GetActive(ctx, "llm1_system")
	if err != nil {
		return LLM1Result{}, fmt.Errorf("load llm1_system prompt: %w", err)
	}
	userPrompt, err := s.prompts.GetActive(ctx, "llm1_user")
	if err != nil {
		return LLM1Result{}, fmt.Errorf("load llm1_user prompt: %w", err)
	}

	rendered := renderPromptTemplate(userPrompt.Content, map[string]string{
		"case_id":   caseID,
		"case_text": cleanedText,
	})

	resp, err := s.gateway.Complete(ctx, llm.CompletionRequest{SystemPrompt: sysPrompt.Content, UserPrompt: rendered})
	if err != nil {
		return LLM1Result{}, fmt.Errorf("llm1 gateway call: %w", err)
	}

	var parsed llm1Response
	if err := json.Unmarshal([]byte(resp.RawText), &parsed); err != nil {
		return LLM1Result{}, fmt.Errorf("llm1 response schema validation: %w", err)
	}
	if parsed.SchemaVersion == "" {
		return LLM1Result{}, fmt.Errorf("llm1 response schema validation: missing schema_version")
	}

	structuredDataJSON, err := json.Marshal(parsed)
	if err != nil {
		return LLM1Result{}, fmt.Errorf("marshal llm1 structured data: %w", err)
	}

	return LLM1Result{
		StructuredDataJSON:  structuredDataJSON,
		PromptSystemName:    sysPrompt.Name,
		PromptSystemVersion: sysPrompt.Version,
		PromptUserName:      userPrompt.Name,
		PromptUserVersion:   userPrompt.Version,
		ModelName:           resp.ModelName,
	}, nil
}

// GatewayLLM2Service implements LLM2Service against an llm.Gateway,
// applying llm.Reconcile to the raw suggestion before persisting it.
type GatewayLLM2Service struct {
	gateway llm.Gateway
	prompts *db.PromptRepository
}

// NewGatewayLLM2Service builds a GatewayLLM2Service.
func NewGatewayLLM2Service(gateway llm.Gateway, prompts *db.PromptRepository) *GatewayLLM2Service {
	return &GatewayLLM2Service{gateway: gateway, prompts: prompts}
}

// Run implements LLM2Service.
func (s *GatewayLLM2Service) Run(ctx context.Context, caseID string, agencyRecordNumber string, structuredDataJSON []byte) (LLM2Result, error) {
	var precheck llm1Response
	if err := json.Unmarshal(structuredDataJSON, &precheck); err != nil {
		return LLM2Result{}, fmt.Errorf("unmarshal llm1 structured data: %w", err)
	}

	sysPrompt, err := s.prompts.GetActive(ctx, "llm2_system")
	if err != nil {
		return LLM2Result{}, fmt.Errorf("load llm2_system prompt: %w", err)
	}
	userPrompt, err := s.prompts.GetActive(ctx, "llm2_user")
	if err != nil {
		return LLM2Result{}, fmt.Errorf("load llm2_user prompt: %w", err)
	}

	rendered := renderPromptTemplate(userPrompt.Content, map[string]string{
		"case_id":              caseID,
		"agency_record_number": agencyRecordNumber,
		"structured_data_json": string(structuredDataJSON),
	})

	resp, err := s.gateway.Complete(ctx, llm.CompletionRequest{SystemPrompt: sysPrompt.Content, UserPrompt: rendered})
	if err != nil {
		return LLM2Result{}, fmt.Errorf("llm2 gateway call: %w", err)
	}

	var parsed llm2Response
	if err := json.Unmarshal([]byte(resp.RawText), &parsed); err != nil {
		return LLM2Result{}, fmt.Errorf("llm2 response schema validation: %w", err)
	}
	if parsed.SchemaVersion == "" {
		return LLM2Result{}, fmt.Errorf("llm2 response schema validation: missing schema_version")
	}

	reconciled, contradictions := llm.Reconcile(
		llm.PrecheckInput{
			ExcludedFromEDAFlow: precheck.PolicyPrecheck.ExcludedFromEDAFlow,
			IndicationCategory:  precheck.EDA.IndicationCategory,
			LabsRequired:        precheck.PolicyPrecheck.LabsRequired,
			LabsPass:            precheck.PolicyPrecheck.LabsPass,
			ECGRequired:         precheck.PolicyPrecheck.ECGRequired,
			ECGPresent:          precheck.PolicyPrecheck.ECGPresent,
			PediatricFlag:       precheck.PolicyPrecheck.PediatricFlag,
		},
		llm.SuggestionInput{
			Suggestion: parsed.Suggestion,
			PolicyAlignment: llm.PolicyAlignment{
				ExcludedRequest: parsed.PolicyAlignment.ExcludedRequest,
				LabsOK:          parsed.PolicyAlignment.LabsOK,
				ECGOk:           parsed.PolicyAlignment.ECGOk,
				PediatricFlag:   parsed.PolicyAlignment.PediatricFlag,
				Notes:           parsed.PolicyAlignment.Notes,
			},
		},
	)

	suggestedActionJSON, err := json.Marshal(map[string]any{
		"suggestion":       reconciled.Suggestion,
		"policy_alignment": reconciled.PolicyAlignment,
		"contradictions":   contradictions,
	})
	if err != nil {
		return LLM2Result{}, fmt.Errorf("marshal suggested action: %w", err)
	}

	return LLM2Result{
		SummaryText:         renderSummaryText(precheck, reconciled),
		SuggestedActionJSON: suggestedActionJSON,
		ContradictionCount:  len(contradictions),
		PromptSystemName:    sysPrompt.Name,
		PromptSystemVersion: sysPrompt.Version,
		PromptUserName:      userPrompt.Name,
		PromptUserVersion:   userPrompt.Version,
		ModelName:           resp.ModelName,
	}, nil
}

// renderPromptTemplate substitutes {{name}} placeholders in a prompt
// template's stored content. Prompt authoring stays a flat, reviewable
// string in prompt_templates.content rather than a compiled template, so a
// plain substitution pass is all rendering needs.
func renderPromptTemplate(content string, vars map[string]string) string {
	out := content
	for name, value := range vars {
		out = strings.ReplaceAll(out, "{{"+name+"}}", value)
	}
	return out
}

// renderSummaryText builds the doctor-facing summary persisted as
// summary_text, combining LLM1's precheck facts with LLM2's reconciled
// suggestion.
func renderSummaryText(precheck llm1Response, reconciled llm.Reconciled) string {
	decision := "aceitar"
	if reconciled.Suggestion == "deny" {
		decision = "negar"
	}
	return fmt.Sprintf(
		"Categoria: %s. Sugestao do sistema: %s.",
		precheck.EDA.IndicationCategory, decision,
	)
}
