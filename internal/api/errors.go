package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/carlosapgomes/caseflow/internal/services"
)

// mapServiceError maps a service-layer error to an HTTP error response,
// the single translation point spec.md §7 calls for, generalized from the
// teacher's equivalent with the additional case-decision outcome kinds
// this domain's state machine needs.
func mapServiceError(err error) *echo.HTTPError {
	var validErr *services.ValidationError
	if errors.As(err, &validErr) {
		return echo.NewHTTPError(http.StatusBadRequest, validErr.Error())
	}
	if errors.Is(err, services.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "resource not found")
	}
	if errors.Is(err, services.ErrAlreadyExists) {
		return echo.NewHTTPError(http.StatusConflict, "resource already exists")
	}
	if errors.Is(err, services.ErrInvalidInput) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid input")
	}
	if errors.Is(err, services.ErrConcurrentModification) {
		return echo.NewHTTPError(http.StatusConflict, "concurrent modification")
	}

	slog.Error("unexpected service error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}

// mapDoctorDecisionOutcome maps a DoctorDecisionOutcome that isn't
// APPLIED to its HTTP response, per spec.md §7's state-conflict/not-found
// taxonomy.
func mapDoctorDecisionOutcome(outcome services.DoctorDecisionOutcome) *echo.HTTPError {
	switch outcome {
	case services.DoctorDecisionNotFound:
		return echo.NewHTTPError(http.StatusNotFound, "case not found")
	case services.DoctorDecisionWrongState:
		return echo.NewHTTPError(http.StatusConflict, "case not in WAIT_DOCTOR")
	case services.DoctorDecisionDuplicateOrRace:
		return echo.NewHTTPError(http.StatusConflict, "case not in WAIT_DOCTOR")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
}
