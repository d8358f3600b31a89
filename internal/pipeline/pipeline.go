// Package pipeline drives iterative novel generation: outline synthesis,
// then sequential chapter drafting over a bounded rolling context.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/storyloom/storyloom/internal/config"
	"github.com/storyloom/storyloom/internal/domain"
	"github.com/storyloom/storyloom/internal/metrics"
	"github.com/storyloom/storyloom/internal/tokens"
)

const upcomingWindow = 5

// Caller runs one logical completion with retries. Satisfied by the
// dispatcher; tests substitute fakes.
type Caller interface {
	Dispatch(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResult, error)
}

// ChapterError reports which chapter a failed run died on. Index is
// zero-based.
type ChapterError struct {
	Index int
	Err   error
}

func (e *ChapterError) Error() string {
	return fmt.Sprintf("chapter %d generation failed: %v", e.Index+1, e.Err)
}

func (e *ChapterError) Unwrap() error {
	return e.Err
}

// Params starts one generation run. Model is optional; when empty the
// active provider's default is resolved per dispatch.
type Params struct {
	Premise  string `json:"premise"`
	Chapters int    `json:"chapters"`
	Style    string `json:"style,omitempty"`
	Model    string `json:"model,omitempty"`
}

// Novel is the finished product.
type Novel struct {
	Title    string    `json:"title"`
	Outline  *Outline  `json:"outline"`
	Chapters []Chapter `json:"chapters"`
}

// Option configures the pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithProgress installs a callback invoked after each accepted chapter.
func WithProgress(fn func(chapter, total int)) Option {
	return func(p *Pipeline) {
		p.progress = fn
	}
}

// Pipeline generates one novel per Generate call. Chapters within a run
// are strictly sequential; run several pipelines for concurrency.
type Pipeline struct {
	caller   Caller
	cfg      config.GenerationConfig
	tokens   *tokens.Registry
	logger   *slog.Logger
	progress func(chapter, total int)
}

// New creates a pipeline.
func New(caller Caller, cfg config.GenerationConfig, counter *tokens.Registry, opts ...Option) *Pipeline {
	p := &Pipeline{
		caller: caller,
		cfg:    cfg,
		tokens: counter,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Generate runs the full pipeline. On failure the partial narrative state
// is returned alongside the error so completed chapters are not lost.
func (p *Pipeline) Generate(ctx context.Context, params Params) (*Novel, *NarrativeState, error) {
	state := &NarrativeState{}

	outline, err := p.synthesizeOutline(ctx, params)
	if err != nil {
		return nil, state, err
	}
	state.Outline = outline
	p.logger.Info("outline synthesized",
		"title", outline.Title, "chapters", len(outline.Chapters))

	total := len(outline.Chapters)
	for i := 0; i < total; i++ {
		start := time.Now()
		chapter, err := p.draftChapter(ctx, outline, state, i, params)
		if err != nil {
			metrics.ChaptersTotal.WithLabelValues("failed").Inc()
			metrics.ChapterDuration.WithLabelValues("failed").Observe(time.Since(start).Seconds())
			return nil, state, &ChapterError{Index: i, Err: err}
		}
		state.Chapters = append(state.Chapters, *chapter)
		metrics.ChaptersTotal.WithLabelValues("complete").Inc()
		metrics.ChapterDuration.WithLabelValues("complete").Observe(time.Since(start).Seconds())
		p.logger.Info("chapter accepted",
			"chapter", i+1, "total", total,
			"title", chapter.Title, "runes", utf8.RuneCountInString(chapter.Text),
			"elapsed", time.Since(start))
		if p.progress != nil {
			p.progress(i+1, total)
		}
	}

	return &Novel{
		Title:    outline.Title,
		Outline:  outline,
		Chapters: state.Chapters,
	}, state, nil
}

// draftChapter produces one accepted chapter: draft, length check, finale
// marker, summary, optional review.
func (p *Pipeline) draftChapter(ctx context.Context, outline *Outline, state *NarrativeState, index int, params Params) (*Chapter, error) {
	plan := outline.Chapters[index]
	total := len(outline.Chapters)

	prompt := chapterPrompt(chapterPromptParams{
		Premise:       outline.Premise,
		Characters:    outline.Characters,
		OutlineText:   outlineText(outline),
		PriorContext:  p.buildContext(state, params.Model),
		ChapterTitle:  plan.Title,
		Storyline:     plan.Summary,
		UpcomingText:  upcomingText(outline, index+1, upcomingWindow),
		Style:         params.Style,
		ChapterNumber: index + 1,
		TotalChapters: total,
	})

	text, err := p.requestChapter(ctx, prompt, params.Model)
	if err != nil {
		return nil, err
	}

	// A draft below the minimum length earns exactly one re-request.
	if utf8.RuneCountInString(text) < p.cfg.MinChapterRunes {
		p.logger.Warn("draft below minimum length, re-requesting",
			"chapter", index+1, "runes", utf8.RuneCountInString(text))
		text, err = p.requestChapter(ctx, prompt, params.Model)
		if err != nil {
			return nil, err
		}
	}

	if index == total-1 {
		text = strings.TrimRight(text, " \n") + "\n\nTHE END"
	}

	chapter := &Chapter{Title: plan.Title, Text: text}

	// Summaries only matter while later chapters will carry them as
	// rolling context.
	if index < total-1 && p.cfg.SummaryWindow > 0 {
		chapter.Summary = p.summarize(ctx, chapter, params.Model)
	}

	if p.cfg.Review && index < total-1 {
		p.review(ctx, outline, state, chapter, params.Model)
	}
	return chapter, nil
}

func (p *Pipeline) requestChapter(ctx context.Context, prompt, model string) (string, error) {
	result, err := p.caller.Dispatch(ctx, &domain.CompletionRequest{
		Model:  model,
		System: chapterSystemPrompt,
		Messages: []domain.Message{
			{Role: domain.RoleUser, Content: prompt},
		},
		MaxTokens:   p.cfg.MaxTokens,
		Temperature: p.cfg.Temperature,
	})
	if err != nil {
		return "", err
	}
	return extractChapterContent(result.Text), nil
}

// summarize produces the rolling-context summary for an accepted chapter.
// A failed summary call degrades to the chapter's opening sentences.
func (p *Pipeline) summarize(ctx context.Context, chapter *Chapter, model string) string {
	result, err := p.caller.Dispatch(ctx, &domain.CompletionRequest{
		Model:  model,
		System: summarySystemPrompt,
		Messages: []domain.Message{
			{Role: domain.RoleUser, Content: summaryPrompt(chapter.Title, chapter.Text)},
		},
		MaxTokens:   p.cfg.MaxTokens,
		Temperature: p.cfg.Temperature,
	})
	if err != nil {
		p.logger.Warn("summary call failed, using opening sentences",
			"chapter", chapter.Title, "error", err)
		return fmt.Sprintf("[%s]\n%s", chapter.Title, firstSentences(chapter.Text, 3))
	}
	return strings.TrimSpace(result.Text)
}

// review runs a best-effort continuity check. A CONSISTENT verdict or any
// failure keeps the draft; a rewrite replaces it.
func (p *Pipeline) review(ctx context.Context, outline *Outline, state *NarrativeState, chapter *Chapter, model string) {
	var priorSummaries []string
	for _, ch := range state.Chapters {
		if ch.Summary != "" {
			priorSummaries = append(priorSummaries, ch.Summary)
		}
	}

	result, err := p.caller.Dispatch(ctx, &domain.CompletionRequest{
		Model:  model,
		System: reviewSystemPrompt,
		Messages: []domain.Message{
			{Role: domain.RoleUser, Content: reviewPrompt(outline.Characters, priorSummaries, chapter.Title, chapter.Text)},
		},
		MaxTokens:   p.cfg.MaxTokens,
		Temperature: p.cfg.Temperature,
	})
	if err != nil {
		p.logger.Warn("review call failed, keeping draft",
			"chapter", chapter.Title, "error", err)
		return
	}

	verdict := strings.TrimSpace(result.Text)
	if strings.EqualFold(verdict, "CONSISTENT") {
		return
	}
	rewrite := extractChapterContent(verdict)
	if utf8.RuneCountInString(rewrite) < p.cfg.MinChapterRunes {
		p.logger.Warn("review rewrite below minimum length, keeping draft",
			"chapter", chapter.Title)
		return
	}
	p.logger.Info("review produced a rewrite", "chapter", chapter.Title)
	chapter.Text = rewrite
}
