package services

import (
	"context"

	"github.com/google/uuid"
)

// PDFTextExtractor extracts raw text from a downloaded PDF's bytes. The
// actual PDF parsing library is an infrastructure concern outside this
// engine's scope; this port is the seam ProcessPDFService calls through.
type PDFTextExtractor interface {
	ExtractText(ctx context.Context, pdfBytes []byte) (string, error)
}

// AgencyRecordResult is the outcome of extracting and stripping the
// agency record number from a PDF's raw extracted text.
type AgencyRecordResult struct {
	CleanedText        string
	AgencyRecordNumber string
}

// AgencyRecordExtractor finds the regulatory agency record number
// embedded in a PDF's extracted text and returns the text with that
// marker line removed, so the cleaned text can be handed to LLM1/LLM2
// without the identifier duplicated in the free-text body.
type AgencyRecordExtractor interface {
	ExtractAndStrip(rawText string) (AgencyRecordResult, error)
}

// LLM1Result is what the LLM1 structured-extraction call produces.
type LLM1Result struct {
	StructuredDataJSON  []byte
	PromptSystemName    string
	PromptSystemVersion int
	PromptUserName      string
	PromptUserVersion   int
	ModelName           string
}

// LLM1Service runs the schema-validating structured-extraction prompt
// call against the cleaned PDF text.
type LLM1Service interface {
	Run(ctx context.Context, caseID string, cleanedText string) (LLM1Result, error)
}

// LLM2Result is what the LLM2 suggestion call, after deterministic policy
// reconciliation, produces.
type LLM2Result struct {
	SummaryText         string
	SuggestedActionJSON []byte
	ContradictionCount  int
	PromptSystemName    string
	PromptSystemVersion int
	PromptUserName      string
	PromptUserVersion   int
	ModelName           string
}

// LLM2Service runs the suggestion prompt call, schema-validates the
// response, and reconciles it against LLM1's precheck facts via
// internal/llm.Reconcile.
type LLM2Service interface {
	Run(ctx context.Context, caseID string, agencyRecordNumber string, structuredDataJSON []byte) (LLM2Result, error)
}

// PriorCase is the most recent denied case for the same agency record
// number within the lookback window, used to surface prior-denial context
// on the Room-2 widget.
type PriorCase struct {
	CaseID       string
	DecidedAt    string
	DoctorReason string
}

// PriorCaseLookupPort resolves recent prior-case context for a given
// agency record number, and the count of such denials in the lookback
// window.
type PriorCaseLookupPort interface {
	LookupRecentContext(ctx context.Context, caseID uuid.UUID, agencyRecordNumber string) (prior *PriorCase, denialCount7d int, err error)
}
