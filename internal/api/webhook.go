package api

import (
	"encoding/json"
	"net/http"

	echo "github.com/labstack/echo/v5"
	"github.com/google/uuid"

	"github.com/carlosapgomes/caseflow/internal/services"
)

// triageDecisionPayload is the body both the HMAC webhook and the widget
// submit endpoint accept, per spec.md §6.
type triageDecisionPayload struct {
	CaseID        uuid.UUID `json:"case_id"`
	DoctorUserID  string    `json:"doctor_user_id"`
	Decision      string    `json:"decision"`
	SupportFlag   string    `json:"support_flag"`
	Reason        *string   `json:"reason"`
	WidgetEventID *string   `json:"widget_event_id"`
	SubmittedAt   *string   `json:"submitted_at"`
}

// validate enforces the input invariant spec.md §4.4 states: decision=deny
// requires support_flag=none. Returned as a *services.ValidationError so
// mapServiceError renders it the same way a service-layer violation would.
func (p triageDecisionPayload) validate() error {
	if p.Decision != "accept" && p.Decision != "deny" {
		return services.NewValidationError("decision", "must be accept or deny")
	}
	if p.SupportFlag != "none" && p.SupportFlag != "anesthesist" && p.SupportFlag != "anesthesist_icu" {
		return services.NewValidationError("support_flag", "must be none, anesthesist, or anesthesist_icu")
	}
	if p.Decision == "deny" && p.SupportFlag != "none" {
		return services.NewValidationError("support_flag", "must be none when decision is deny")
	}
	if p.DoctorUserID == "" {
		return services.NewValidationError("doctor_user_id", "is required")
	}
	return nil
}

func (p triageDecisionPayload) toServiceInput() services.DoctorDecisionInput {
	return services.DoctorDecisionInput{
		CaseID: p.CaseID, DoctorUserID: p.DoctorUserID, Decision: p.Decision,
		SupportFlag: p.SupportFlag, Reason: p.Reason, WidgetEventID: p.WidgetEventID,
	}
}

// triageDecisionWebhookHandler implements POST /callbacks/triage-decision:
// HMAC-SHA256 over the raw body, shared secret, signature in X-Signature.
func (s *Server) triageDecisionWebhookHandler(c *echo.Context) error {
	body, err := readSignedBody(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}

	sig := c.Request().Header.Get("X-Signature")
	if sig == "" || !verifyHMACSignature(s.webhookHMACSecret, body, sig) {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid signature")
	}

	var payload triageDecisionPayload
	if err := json.Unmarshal(body, &payload); err != nil {
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
