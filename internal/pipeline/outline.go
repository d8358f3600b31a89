package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/storyloom/storyloom/internal/domain"
)

// ChapterOutline is one planned chapter.
type ChapterOutline struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// Outline is the synthesized plan for the whole novel.
type Outline struct {
	Title      string           `json:"title"`
	Premise    string           `json:"premise"`
	Characters []string         `json:"characters"`
	Chapters   []ChapterOutline `json:"chapters"`
}

// OutlineError reports that outline synthesis failed after the re-prompt.
type OutlineError struct {
	Err error
}

func (e *OutlineError) Error() string {
	return fmt.Sprintf("outline synthesis failed: %v", e.Err)
}

func (e *OutlineError) Unwrap() error {
	return e.Err
}

// synthesizeOutline asks for the outline as JSON. A malformed answer earns
// exactly one re-prompt with stricter formatting instructions before the
// run fails.
func (p *Pipeline) synthesizeOutline(ctx context.Context, params Params) (*Outline, error) {
	outline, err := p.requestOutline(ctx,
		outlinePrompt(params.Premise, params.Chapters, params.Style), params)
	if err == nil {
		return outline, nil
	}
	if _, ok := err.(*domain.CallError); ok {
		// Transport or provider failure: retrying with a stricter prompt
		// would not help.
		return nil, &OutlineError{Err: err}
	}

	p.logger.Warn("outline response not parseable, re-prompting", "error", err)
	outline, err = p.requestOutline(ctx,
		outlineRetryPrompt(params.Premise, params.Chapters, params.Style), params)
	if err != nil {
		return nil, &OutlineError{Err: err}
	}
	return outline, nil
}

func (p *Pipeline) requestOutline(ctx context.Context, prompt string, params Params) (*Outline, error) {
	result, err := p.caller.Dispatch(ctx, &domain.CompletionRequest{
		Model:  params.Model,
		System: outlineSystemPrompt,
		Messages: []domain.Message{
			{Role: domain.RoleUser, Content: prompt},
		},
		MaxTokens:   p.cfg.MaxTokens,
		Temperature: p.cfg.Temperature,
	})
	if err != nil {
		return nil, err
	}
	return parseOutline(result.Text, params.Chapters)
}

func parseOutline(raw string, numChapters int) (*Outline, error) {
	var outline Outline
	if err := json.Unmarshal([]byte(stripJSONFence(raw)), &outline); err != nil {
		return nil, fmt.Errorf("parse outline JSON: %w", err)
	}
	if outline.Title == "" {
		return nil, fmt.Errorf("outline has no title")
	}
	if len(outline.Chapters) == 0 {
		return nil, fmt.Errorf("outline has no chapters")
	}
	// Tolerate a miscounted plan rather than failing the run.
	if len(outline.Chapters) > numChapters {
		outline.Chapters = outline.Chapters[:numChapters]
	}
	for len(outline.Chapters) < numChapters {
		n := len(outline.Chapters) + 1
		outline.Chapters = append(outline.Chapters, ChapterOutline{
			Title:   fmt.Sprintf("Chapter %d", n),
			Summary: "Continue the story toward its conclusion.",
		})
	}
	return &outline, nil
}

// outlineText renders the chapter plan for inclusion in drafting prompts.
func outlineText(o *Outline) string {
	var out []byte
	for i, ch := range o.Chapters {
		out = append(out, fmt.Sprintf("%d. %s: %s\n", i+1, ch.Title, ch.Summary)...)
	}
	return string(out)
}

// upcomingText renders the next few planned chapters so the model can set
// them up without writing them.
func upcomingText(o *Outline, current, window int) string {
	end := current + window
	if end > len(o.Chapters) {
		end = len(o.Chapters)
	}
	if current >= end {
		return ""
	}
	var out []byte
	for i := current; i < end; i++ {
		out = append(out, fmt.Sprintf("%d. %s: %s\n", i+1, o.Chapters[i].Title, o.Chapters[i].Summary)...)
	}
	return string(out)
}
