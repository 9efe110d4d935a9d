package api

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/carlosapgomes/caseflow/internal/services"
)

func TestTriageDecisionPayload_Validate(t *testing.T) {
	tests := []struct {
		name    string
		payload triageDecisionPayload
		wantErr bool
	}{
		{
			name:    "valid accept",
			payload: triageDecisionPayload{DoctorUserID: "@doctor:example.org", Decision: "accept", SupportFlag: "none"},
		},
		{
			name:    "valid deny with none support flag",
			payload: triageDecisionPayload{DoctorUserID: "@doctor:example.org", Decision: "deny", SupportFlag: "none"},
		},
		{
			name:    "accept with anesthesist support flag",
			payload: triageDecisionPayload{DoctorUserID: "@doctor:example.org", Decision: "accept", SupportFlag: "anesthesist"},
		},
		{
			name:    "deny with non-none support flag is rejected",
			payload: triageDecisionPayload{DoctorUserID: "@doctor:example.org", Decision: "deny", SupportFlag: "anesthesist"},
			wantErr: true,
		},
		{
			name:    "invalid decision value",
			payload: triageDecisionPayload{DoctorUserID: "@doctor:example.org", Decision: "maybe", SupportFlag: "none"},
			wantErr: true,
		},
		{
			name:    "invalid support flag value",
			payload: triageDecisionPayload{DoctorUserID: "@doctor:example.org", Decision: "accept", SupportFlag: "bogus"},
			wantErr: true,
		},
		{
			name:    "missing doctor user id",
			payload: triageDecisionPayload{Decision: "accept", SupportFlag: "none"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.payload.validate()
			if tt.wantErr {
				assert.Error(t, err)
				assert.True(t, services.IsValidationError(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
