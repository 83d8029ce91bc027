package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseDecisionRecognizesKnownValues(t *testing.T) {
	cases := map[string]Decision{
		"approved":             DecisionApproved,
		"approved_for_session": DecisionApprovedForSession,
		"denied":               DecisionDenied,
		"abort":                DecisionAbort,
	}
	for raw, want := range cases {
		assert.Equal(t, want, ParseDecision(raw))
	}
}

func TestParseDecisionDefaultsToDeniedForUnknownInput(t *testing.T) {
	assert.Equal(t, DecisionDenied, ParseDecision(""))
	assert.Equal(t, DecisionDenied, ParseDecision("maybe"))
	assert.Equal(t, DecisionDenied, ParseDecision("APPROVED"))
}
