package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/carlosapgomes/caseflow/internal/db"
)

// CaseRepositoryPriorCaseLookup implements PriorCaseLookupPort against the
// cases table, per spec.md §4.6.
type CaseRepositoryPriorCaseLookup struct {
	cases *db.CaseRepository
}

// NewCaseRepositoryPriorCaseLookup builds a CaseRepositoryPriorCaseLookup.
func NewCaseRepositoryPriorCaseLookup(cases *db.CaseRepository) *CaseRepositoryPriorCaseLookup {
	return &CaseRepositoryPriorCaseLookup{cases: cases}
}

// LookupRecentContext implements PriorCaseLookupPort.
func (l *CaseRepositoryPriorCaseLookup) LookupRecentContext(ctx context.Context, caseID uuid.UUID, agencyRecordNumber string) (*PriorCase, int, error) {
	rows, err := l.cases.FindRecentDenialsByAgencyRecord(ctx, agencyRecordNumber, caseID)
	if err != nil {
		return nil, 0, fmt.Errorf("find recent denials: %w", err)
	}
	if len(rows) == 0 {
		return nil, 0, nil
	}

	top := rows[0]
	reason := top.DoctorReason
	if reason == nil || strings.TrimSpace(*reason) == "" {
		reason = top.AppointmentReason
	}
	reasonText := "não informado"
	if reason != nil && strings.TrimSpace(*reason) != "" {
		reasonText = *reason
	}

	return &PriorCase{
		CaseID:       top.CaseID.String(),
		DecidedAt:    top.DeniedAt,
		DoctorReason: reasonText,
	}, len(rows), nil
}
