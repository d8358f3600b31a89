package pipeline

import (
	"fmt"
	"strings"
)

// Chapter is one accepted draft with its rolling-context summary.
type Chapter struct {
	Title   string `json:"title"`
	Text    string `json:"text"`
	Summary string `json:"summary,omitempty"`
}

// NarrativeState is everything generated so far in a run. On failure the
// partial state is preserved so the caller can inspect or resume.
type NarrativeState struct {
	Outline  *Outline  `json:"outline,omitempty"`
	Chapters []Chapter `json:"chapters"`
}

// buildContext assembles the prior-narrative window for the next chapter.
// While everything written so far fits the token budget, all chapters are
// included verbatim. Over budget, the most recent chapters stay verbatim
// and the window before them is carried as summaries; anything older is
// dropped.
func (p *Pipeline) buildContext(state *NarrativeState, model string) string {
	n := len(state.Chapters)
	if n == 0 {
		return ""
	}

	var full strings.Builder
	for i, ch := range state.Chapters {
		fmt.Fprintf(&full, "Chapter %d:\n%s\n\n", i+1, ch.Text)
	}
	if n <= p.cfg.RecentChapters || p.tokens.Count(model, full.String()) <= p.cfg.ContextBudgetTokens {
		return strings.TrimSpace(full.String())
	}

	verbatimStart := n - p.cfg.RecentChapters
	summaryStart := verbatimStart - p.cfg.SummaryWindow
	if summaryStart < 0 {
		summaryStart = 0
	}

	var parts []string
	for i := summaryStart; i < verbatimStart; i++ {
		ch := state.Chapters[i]
		summary := ch.Summary
		if summary == "" {
			// A missing summary falls back to the chapter's opening
			// sentences.
			summary = firstSentences(ch.Text, 2)
		}
		parts = append(parts, fmt.Sprintf("Chapter %d summary:\n%s", i+1, summary))
	}
	for i := verbatimStart; i < n; i++ {
		parts = append(parts, fmt.Sprintf("Chapter %d:\n%s", i+1, state.Chapters[i].Text))
	}
	return strings.Join(parts, "\n\n")
}
