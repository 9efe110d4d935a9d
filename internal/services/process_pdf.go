package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/carlosapgomes/caseflow/internal/chat"
	"github.com/carlosapgomes/caseflow/internal/db"
	"github.com/carlosapgomes/caseflow/internal/models"
	"github.com/carlosapgomes/caseflow/internal/queue"
)

// ProcessPDFRetriableError wraps any failure in the download/extract/LLM1/
// LLM2 pipeline with the stage it occurred in. The stage is part of the
// error text, which the dead-letter path passes on as the failure final
// reply's details (its cause is always "other").
type ProcessPDFRetriableError struct {
	Cause   string // download | extract | llm1 | llm2
	Details string
}

func (e *ProcessPDFRetriableError) Error() string {
	return fmt.Sprintf("process_pdf_case: %s: %s", e.Cause, e.Details)
}

func retriablePDFErr(cause string, err error) error {
	return &ProcessPDFRetriableError{Cause: cause, Details: err.Error()}
}

// ProcessPDFService implements the process_pdf_case job: download the PDF
// from the chat fabric, extract its text, run LLM1 structured extraction
// and (if configured) LLM2 suggestion + deterministic policy
// reconciliation, then hand off to the Room-2 widget poster.
type ProcessPDFService struct {
	cases      *db.CaseRepository
	messages   *db.MessageRepository
	audit      *db.AuditRepository
	jobs       queue.Repository
	transport  chat.Transport
	pdfText    PDFTextExtractor
	agencyRec  AgencyRecordExtractor
	llm1       LLM1Service
	llm2       LLM2Service // nil disables the LLM2/suggestion stage
}

// NewProcessPDFService builds a ProcessPDFService. llm2 may be nil to run
// LLM1-only deployments.
func NewProcessPDFService(cases *db.CaseRepository, messages *db.MessageRepository, audit *db.AuditRepository, jobs queue.Repository, transport chat.Transport, pdfText PDFTextExtractor, agencyRec AgencyRecordExtractor, llm1 LLM1Service, llm2 LLM2Service) *ProcessPDFService {
	return &ProcessPDFService{
		cases: cases, messages: messages, audit: audit, jobs: jobs,
		transport: transport, pdfText: pdfText, agencyRec: agencyRec, llm1: llm1, llm2: llm2,
	}
}

type processPDFPayload struct {
	PDFMxcURL string `json:"pdf_mxc_url"`
}

// Handle implements queue.Handler.
func (s *ProcessPDFService) Handle(ctx context.Context, job models.Job) error {
	if job.CaseID == nil {
		return fmt.Errorf("process_pdf_case job %d has no case_id", job.JobID)
	}
	caseID := *job.CaseID

	var payload processPDFPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal process_pdf_case payload: %w", err)
	}

	if err := s.cases.UpdateStatus(ctx, caseID, models.StatusExtracting); err != nil {
		return fmt.Errorf("transition to EXTRACTING: %w", err)
	}

	data, sha256Hex, err := s.transport.DownloadMXC(ctx, payload.PDFMxcURL)
	if err != nil {
		return retriablePDFErr("download", err)
	}

	rawText, err := s.pdfText.ExtractText(ctx, data)
	if err != nil {
		return retriablePDFErr("extract", err)
	}
	if rawText == "" {
		return retriablePDFErr("extract", fmt.Errorf("empty PDF text"))
	}

	stripped, err := s.agencyRec.ExtractAndStrip(rawText)
	if err != nil {
		return retriablePDFErr("extract", err)
	}

	if err := s.messages.AppendCaseReportTranscript(ctx, caseID, stripped.CleanedText); err != nil {
		return fmt.Errorf("append report transcript: %w", err)
	}
	if err := s.cases.StorePDFExtraction(ctx, caseID, payload.PDFMxcURL, sha256Hex, stripped.CleanedText, &stripped.AgencyRecordNumber); err != nil {
		return fmt.Errorf("store pdf extraction: %w", err)
	}

	if err := s.cases.UpdateStatus(ctx, caseID, models.StatusLLMStruct); err != nil {
		return fmt.Errorf("transition to LLM_STRUCT: %w", err)
	}

	llm1Result, err := s.llm1.Run(ctx, caseID.String(), stripped.CleanedText)
	if err != nil {
		return retriablePDFErr("llm1", err)
	}
	if err := s.cases.StoreLLM1Artifacts(ctx, caseID, llm1Result.StructuredDataJSON, models.StatusLLMStruct); err != nil {
		return fmt.Errorf("store llm1 artifacts: %w", err)
	}
	if err := s.messages.AppendCaseLLMInteraction(ctx, db.CaseLLMInteractionCreateInput{
		CaseID: caseID, Stage: "llm1",
		InputPayload: []byte(`{"cleaned_text_len":` + fmt.Sprint(len(stripped.CleanedText)) + `}`),
		OutputPayload: llm1Result.StructuredDataJSON,
		PromptSystemName: &llm1Result.PromptSystemName, PromptSystemVersion: &llm1Result.PromptSystemVersion,
		PromptUserName: &llm1Result.PromptUserName, PromptUserVersion: &llm1Result.PromptUserVersion,
		ModelName: &llm1Result.ModelName,
	}); err != nil {
		return fmt.Errorf("append llm1 interaction: %w", err)
	}
	if err := s.audit.AppendEvent(ctx, db.AuditEventCreateInput{
		CaseID: caseID, ActorType: "system", EventType: "LLM1_STRUCTURED_SUMMARY_OK",
		Payload: llmPromptVersionAuditPayload(llm1Result.PromptSystemName, llm1Result.PromptSystemVersion, llm1Result.PromptUserName, llm1Result.PromptUserVersion, llm1Result.ModelName),
	}); err != nil {
		return fmt.Errorf("append LLM1_STRUCTURED_SUMMARY_OK: %w", err)
	}

	if s.llm2 != nil {
		if err := s.cases.UpdateStatus(ctx, caseID, models.StatusLLMSuggest); err != nil {
			return fmt.Errorf("transition to LLM_SUGGEST: %w", err)
		}

		llm2Result, err := s.llm2.Run(ctx, caseID.String(), stripped.AgencyRecordNumber, llm1Result.StructuredDataJSON)
		if err != nil {
			return retriablePDFErr("llm2", err)
		}
		if err := s.cases.StoreLLM2Artifacts(ctx, caseID, llm2Result.SummaryText, llm2Result.SuggestedActionJSON); err != nil {
			return fmt.Errorf("store llm2 artifacts: %w", err)
		}
		if err := s.messages.AppendCaseLLMInteraction(ctx, db.CaseLLMInteractionCreateInput{
			CaseID: caseID, Stage: "llm2",
			InputPayload: llm1Result.StructuredDataJSON, OutputPayload: llm2Result.SuggestedActionJSON,
			PromptSystemName: &llm2Result.PromptSystemName, PromptSystemVersion: &llm2Result.PromptSystemVersion,
			PromptUserName: &llm2Result.PromptUserName, PromptUserVersion: &llm2Result.PromptUserVersion,
			ModelName: &llm2Result.ModelName,
		}); err != nil {
			return fmt.Errorf("append llm2 interaction: %w", err)
		}
		if err := s.audit.AppendEvent(ctx, db.AuditEventCreateInput{
			CaseID: caseID, ActorType: "system", EventType: "LLM2_SUGGESTION_OK",
			Payload: llmPromptVersionAuditPayload(llm2Result.PromptSystemName, llm2Result.PromptSystemVersion, llm2Result.PromptUserName, llm2Result.PromptUserVersion, llm2Result.ModelName),
		}); err != nil {
			return fmt.Errorf("append LLM2_SUGGESTION_OK: %w", err)
		}
		if llm2Result.ContradictionCount > 0 {
			if err := s.audit.AppendEvent(ctx, db.AuditEventCreateInput{
				CaseID: caseID, ActorType: "system", EventType: "LLM_CONTRADICTION_DETECTED",
				Payload: map[string]any{"contradiction_count": llm2Result.ContradictionCount},
			}); err != nil {
				return fmt.Errorf("append LLM_CONTRADICTION_DETECTED: %w", err)
			}
		}
	}

	if _, err := s.jobs.Enqueue(ctx, db.JobEnqueueInput{CaseID: &caseID, JobType: models.JobTypePostRoom2Widget}); err != nil {
		return fmt.Errorf("enqueue post_room2_widget: %w", err)
	}
	return nil
}

var _ queue.Handler = (*ProcessPDFService)(nil)

func llmPromptVersionAuditPayload(systemName string, systemVersion int, userName string, userVersion int, modelName string) map[string]any {
	return map[string]any{
		"prompt_system_name":    systemName,
		"prompt_system_version": systemVersion,
		"prompt_user_name":      userName,
		"prompt_user_version":   userVersion,
		"model_name":            modelName,
	}
}
