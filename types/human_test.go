package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHumanInteraction_Validate(t *testing.T) {
	interaction := HumanInteraction{
		NodeID: "approve",
		Prompt: "Approve this plan?",
		Options: []InteractionOption{
			{ID: "yes", Label: "Approve"},
			{ID: "no", Label: "Reject"},
		},
	}

	tests := []struct {
		name     string
		resp     HumanResponse
		wantCode ErrorCode
	}{
		{
			name: "listed option accepted",
			resp: NewHumanResponse("approve", "yes", ""),
		},
		{
			name:     "unlisted option rejected",
			resp:     NewHumanResponse("approve", "maybe", ""),
			wantCode: ErrInvalidHumanResponse,
		},
		{
			name:     "missing option rejected when free text disallowed",
			resp:     NewHumanResponse("approve", "", "free text"),
			wantCode: ErrInvalidHumanResponse,
		},
		{
			name:     "wrong node rejected",
			resp:     NewHumanResponse("other", "yes", ""),
			wantCode: ErrInvalidHumanResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := interaction.Validate(tt.resp)
			if tt.wantCode == "" {
				assert.NoError(t, err)
			} else {
				assert.Equal(t, tt.wantCode, GetErrorCode(err))
			}
		})
	}
}

func TestHumanInteraction_ValidateFreeText(t *testing.T) {
	interaction := HumanInteraction{
		NodeID:        "comment",
		Prompt:        "Any remarks?",
		AllowFreeText: true,
	}

	assert.NoError(t, interaction.Validate(NewHumanResponse("comment", "", "looks good")))
	assert.Error(t, interaction.Validate(NewHumanResponse("comment", "", "")), "empty response rejected")
}

func TestHumanInteraction_ValidateExpiry(t *testing.T) {
	interaction := HumanInteraction{
		NodeID:        "approve",
		AllowFreeText: true,
		ExpiresAt:     time.Now().Add(-time.Hour),
	}

	err := interaction.Validate(NewHumanResponse("approve", "", "late"))
	assert.Equal(t, ErrInvalidHumanResponse, GetErrorCode(err))
}
