package api

import (
	"encoding/json"
	"net/http"

	echo "github.com/labstack/echo/v5"
	"github.com/google/uuid"

	"github.com/carlosapgomes/caseflow/internal/db"
	"github.com/carlosapgomes/caseflow/internal/services"
)

type room2BootstrapRequest struct {
	CaseID uuid.UUID `json:"case_id"`
}

type room2BootstrapResponse struct {
	CaseID         uuid.UUID `json:"case_id"`
	Status         string    `json:"status"`
	DoctorDecision *string   `json:"doctor_decision,omitempty"`
	DoctorReason   *string   `json:"doctor_reason,omitempty"`
}

// room2BootstrapHandler implements POST /widget/room2/bootstrap, behind
// requireAdminBearer.
func (s *Server) room2BootstrapHandler(c *echo.Context) error {
	var req room2BootstrapRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body")
	}

	snap, err := s.cases.GetRoom2BootstrapSnapshot(c.Request().Context(), req.CaseID)
	if err != nil {
		if err == db.ErrNotFound {
			return echo.NewHTTPError(http.StatusNotFound, "case not found")
		}
		return mapServiceError(err)
	}

	return c.JSON(http.StatusOK, room2BootstrapResponse{
		CaseID:         snap.CaseID,
		Status:         string(snap.Status),
		DoctorDecision: snap.DoctorDecision,
		DoctorReason:   snap.DoctorReason,
	})
}

// room2SubmitHandler implements POST /widget/room2/submit, behind
// requireAdminBearer. Accepts the same payload shape as the HMAC webhook
// and applies the same decision-state-machine validation.
func (s *Server) room2SubmitHandler(c *echo.Context) error {
	var payload triageDecisionPayload
	if err := json.NewDecoder(c.Request().Body).Decode(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body")
	}
	if err := payload.validate(); err != nil {
		return mapServiceError(err)
	}

	outcome, err := s.doctorDecisions.Handle(c.Request().Context(), payload.toServiceInput())
	if err != nil {
		return mapServiceError(err)
	}
	if outcome != services.DoctorDecisionApplied {
		return mapDoctorDecisionOutcome(outcome)
	}

	return c.JSON(http.StatusOK, map[string]any{"ok": true})
}
