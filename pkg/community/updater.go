package community

import (
	"context"
	"fmt"
	"strings"
)

// Updater summarizes a community by asking an LLM to produce a short
// name and summary from its members' names and summaries, writing the
// result back onto the community node. Supplements the source, which
// only documents the contract ("a community updater invokes an LLM with
// member names/summaries") without a retrievable implementation file.
type Updater struct {
	completer Completer
	detector  *Detector
}

// NewUpdater constructs a community Updater.
func NewUpdater(completer Completer, detector *Detector) *Updater {
	return &Updater{completer: completer, detector: detector}
}

// Summarize fetches community members, asks the LLM for a name/summary
// pair, and persists them onto the community node. It leaves the node
// untouched (returning the error) if the LLM call fails.
func (u *Updater) Summarize(ctx context.Context, community Node) (Node, error) {
	members, err := u.detector.GetCommunityMembers(ctx, community.UUID)
	if err != nil {
		return community, fmt.Errorf("load community members: %w", err)
	}
	if len(members) == 0 {
		return community, nil
	}

	prompt := buildSummaryPrompt(members)
	raw, err := u.completer.Complete(ctx, prompt)
	if err != nil {
		return community, fmt.Errorf("summarize community: %w", err)
	}

	name, summary := parseSummaryResponse(raw)
	if name == "" {
		name = community.Name
	}
	community.Name = name
	community.Summary = summary

	if err := u.detector.SaveCommunity(ctx, community, nil); err != nil {
		return community, fmt.Errorf("persist community summary: %w", err)
	}
	return community, nil
}

func buildSummaryPrompt(members []map[string]any) string {
	var b strings.Builder
	b.WriteString("The following entities form a cluster in a knowledge graph:\n\n")
	for _, m := range members {
		name, _ := m["name"].(string)
		summary, _ := m["summary"].(string)
		b.WriteString(fmt.Sprintf("- %s: %s\n", name, summary))
	}
	b.WriteString("\nRespond with exactly two lines:\nName: <a short name for this cluster>\nSummary: <a one or two sentence summary>\n")
	return b.String()
}

func parseSummaryResponse(raw string) (name, summary string) {
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(strings.ToLower(line), "name:"):
			name = strings.TrimSpace(line[len("name:"):])
		case strings.HasPrefix(strings.ToLower(line), "summary:"):
			summary = strings.TrimSpace(line[len("summary:"):])
		}
	}
	return name, summary
}
