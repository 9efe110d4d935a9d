package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/carlosapgomes/caseflow/internal/db"
	"github.com/carlosapgomes/caseflow/internal/services"
)

func TestMapServiceError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{name: "validation error", err: services.NewValidationError("decision", "bad"), wantCode: http.StatusBadRequest},
		{name: "not found", err: db.ErrNotFound, wantCode: http.StatusNotFound},
		{name: "already exists", err: services.ErrAlreadyExists, wantCode: http.StatusConflict},
		{name: "invalid input", err: services.ErrInvalidInput, wantCode: http.StatusBadRequest},
		{name: "concurrent modification", err: services.ErrConcurrentModification, wantCode: http.StatusConflict},
		{name: "unknown error falls back to 500", err: assertAnError{}, wantCode: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapServiceError(tt.err)
			assert.Equal(t, tt.wantCode, got.Code)
		})
	}
}

func TestMapDoctorDecisionOutcome(t *testing.T) {
	tests := []struct {
		name     string
		outcome  services.DoctorDecisionOutcome
		wantCode int
	}{
		{name: "not found", outcome: services.DoctorDecisionNotFound, wantCode: http.StatusNotFound},
		{name: "wrong state", outcome: services.DoctorDecisionWrongState, wantCode: http.StatusConflict},
		{name: "duplicate or race", outcome: services.DoctorDecisionDuplicateOrRace, wantCode: http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapDoctorDecisionOutcome(tt.outcome)
			assert.Equal(t, tt.wantCode, got.Code)
		})
	}
}

type assertAnError struct{}

func (assertAnError) Error() string { return "boom" }
