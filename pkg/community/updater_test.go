package community

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompleter struct {
	response string
	err      error
}

func (f *fakeCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	return f.response, f.err
}

func TestParseSummaryResponseExtractsNameAndSummary(t *testing.T) {
	name, summary := parseSummaryResponse("Name: Engineering Team\nSummary: A cluster of backend engineers.\n")
	assert.Equal(t, "Engineering Team", name)
	assert.Equal(t, "A cluster of backend engineers.", summary)
}

func TestBuildSummaryPromptListsMembers(t *testing.T) {
	members := []map[string]any{
		{"name": "Alice", "summary": "engineer"},
		{"name": "Bob", "summary": "manager"},
	}
	prompt := buildSummaryPrompt(members)
	assert.Contains(t, prompt, "Alice: engineer")
	assert.Contains(t, prompt, "Bob: manager")
}

func TestSummarizeIsNoOpWhenCommunityHasNoMembers(t *testing.T) {
	graph := &fakeGraphRunner{}
	detector := NewDetector(graph, false, 2)
	u := NewUpdater(&fakeCompleter{response: "Name: X\nSummary: Y"}, detector)

	result, err := u.Summarize(context.Background(), Node{UUID: "c1", Name: "orig"})
	require.NoError(t, err)
	assert.Equal(t, "orig", result.Name, "no members means nothing to summarize from, node left unchanged")
}
