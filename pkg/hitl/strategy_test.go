package hitl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestClarificationStrategyRoundTrip(t *testing.T) {
	s := ClarificationStrategy{}
	data := ClarificationRequestData{
		Question:          "Which environment?",
		ClarificationType: ClarificationScope,
		DefaultValue:       strPtr("staging"),
	}
	req, err := s.CreateRequest(data, "conv-1", "tenant-1", "proj-1", nil, 60)
	require.NoError(t, err)
	assert.Equal(t, TypeClarification, req.HITLType)
	assert.True(t, len(req.ID) > len(TypeClarification.RequestIDPrefix()))

	value, err := s.ExtractResponseValue(map[string]any{"answer": "production"})
	require.NoError(t, err)
	assert.Equal(t, "production", value.(map[string]any)["answer"])

	assert.Equal(t, "staging", s.DefaultResponse(req).(map[string]any)["answer"])
}

func TestClarificationStrategyExtractErrorsOnMissingAnswer(t *testing.T) {
	s := ClarificationStrategy{}
	_, err := s.ExtractResponseValue(map[string]any{})
	assert.Error(t, err)
}

func TestDecisionStrategyDefaultResponseUsesDefaultOption(t *testing.T) {
	s := DecisionStrategy{}
	data := DecisionRequestData{Question: "Proceed?", DecisionType: DecisionConfirmation, DefaultOption: strPtr("no")}
	req, err := s.CreateRequest(data, "conv-1", "tenant-1", "proj-1", nil, 30)
	require.NoError(t, err)
	assert.Equal(t, "no", s.DefaultResponse(req).(map[string]any)["decision"])
}

func TestEnvVarStrategyDefaultResponseFillsEachField(t *testing.T) {
	s := EnvVarStrategy{}
	data := EnvVarRequestData{
		ToolName: "github",
		Fields: []EnvVarField{
			{Name: "GITHUB_TOKEN", Secret: true, InputType: EnvVarInputPassword},
			{Name: "GITHUB_ORG", DefaultValue: strPtr("acme")},
		},
	}
	req, err := s.CreateRequest(data, "conv-1", "tenant-1", "proj-1", nil, 120)
	require.NoError(t, err)

	values := s.DefaultResponse(req).(map[string]any)["values"].(map[string]any)
	assert.Nil(t, values["GITHUB_TOKEN"])
	assert.Equal(t, "acme", values["GITHUB_ORG"])
}

func TestEnvVarStrategyExtractResponseValue(t *testing.T) {
	s := EnvVarStrategy{}
	value, err := s.ExtractResponseValue(map[string]any{"values": map[string]any{"GITHUB_TOKEN": "ghp_x"}})
	require.NoError(t, err)
	assert.Equal(t, "ghp_x", value.(map[string]any)["values"].(map[string]any)["GITHUB_TOKEN"])
}

func TestPermissionStrategyDefaultsToDeny(t *testing.T) {
	s := PermissionStrategy{}
	data := PermissionRequestData{ToolName: "shell", Action: string(PermissionAllow), RiskLevel: RiskHigh}
	req, err := s.CreateRequest(data, "conv-1", "tenant-1", "proj-1", nil, 30)
	require.NoError(t, err)

	resp := s.DefaultResponse(req).(map[string]any)
	assert.Equal(t, string(PermissionDeny), resp["action"])
	assert.Equal(t, false, resp["remember"])
}

func TestStrategyForReturnsNilForUnknownType(t *testing.T) {
	assert.Nil(t, strategyFor(Type("bogus")))
}

func TestRequestIDPrefixPerType(t *testing.T) {
	assert.Equal(t, "clar_", TypeClarification.RequestIDPrefix())
	assert.Equal(t, "deci_", TypeDecision.RequestIDPrefix())
	assert.Equal(t, "env_", TypeEnvVar.RequestIDPrefix())
	assert.Equal(t, "perm_", TypePermission.RequestIDPrefix())
}
