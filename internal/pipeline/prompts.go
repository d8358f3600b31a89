package pipeline

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	outlineSystemPrompt = "You are a world-class novelist and story architect. " +
		"You respond with valid JSON only."

	chapterSystemPrompt = "You are a world-class novelist. Follow the provided " +
		"character sheet, story outline and chapter storyline exactly."

	summarySystemPrompt = "You are a professional literary editor who writes " +
		"concise, comprehensive chapter summaries."

	reviewSystemPrompt = "You are a continuity editor. You check a chapter " +
		"draft against the established characters and prior events."
)

// Chapter bodies travel inside explicit markers so commentary the model
// adds around them can be discarded.
var chapterContentPattern = regexp.MustCompile(`(?s)<CHAPTER_CONTENT>(.*?)</CHAPTER_CONTENT>`)

func outlinePrompt(premise string, numChapters int, style string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `Design a complete novel outline from the premise below.

Premise: %s

Number of chapters: %d
`, premise, numChapters)
	if style != "" {
		fmt.Fprintf(&b, "\nWriting style: %s\n", style)
	}
	fmt.Fprintf(&b, `
Respond with a single JSON object of this exact shape:
{
  "title": "novel title",
  "premise": "refined one-paragraph premise",
  "characters": ["name - one-line description", ...],
  "chapters": [{"title": "chapter title", "summary": "what happens"}, ...]
}

The chapters array must contain exactly %d entries. Output only JSON.`, numChapters)
	return b.String()
}

func outlineRetryPrompt(premise string, numChapters int, style string) string {
	return outlinePrompt(premise, numChapters, style) +
		"\n\nIMPORTANT: your previous answer was not parseable. Respond with raw JSON only. " +
		"No markdown fences, no commentary, no trailing text. The first character of " +
		"your answer must be '{' and the last must be '}'."
}

type chapterPromptParams struct {
	Premise       string
	Characters    []string
	OutlineText   string
	PriorContext  string
	ChapterTitle  string
	Storyline     string
	UpcomingText  string
	Style         string
	ChapterNumber int
	TotalChapters int
}

func chapterPrompt(p chapterPromptParams) string {
	var b strings.Builder
	b.WriteString("Write the next chapter of this novel using the information below.\n")
	fmt.Fprintf(&b, "\nPremise: %s\n", p.Premise)
	fmt.Fprintf(&b, "\nCharacters:\n%s\n", strings.Join(p.Characters, "\n"))
	fmt.Fprintf(&b, "\nStory outline:\n%s\n", p.OutlineText)
	if p.PriorContext != "" {
		fmt.Fprintf(&b, "\nPrevious chapters:\n%s\n", p.PriorContext)
	}
	fmt.Fprintf(&b, "\nThis chapter (%d of %d): %s\n", p.ChapterNumber, p.TotalChapters, p.ChapterTitle)
	if p.Storyline != "" {
		fmt.Fprintf(&b, "\nChapter storyline: %s\n", p.Storyline)
	}
	if p.UpcomingText != "" {
		fmt.Fprintf(&b, "\nUpcoming chapters:\n%s\n", p.UpcomingText)
	}
	if p.Style != "" {
		fmt.Fprintf(&b, "\nWriting style: %s\n", p.Style)
	}
	if req := positionRequirements(p.ChapterNumber, p.TotalChapters); req != "" {
		b.WriteString("\n" + req + "\n")
	}
	b.WriteString(`
Requirements:
1. Follow the story outline for this part of the novel.
2. Keep every character consistent with the character sheet.
3. Follow this chapter's storyline.
4. Connect naturally with the previous chapters.
5. Set up the chapters that follow.
6. Write only the chapter text; do not repeat the chapter title.

Wrap the chapter body in these markers:
<CHAPTER_CONTENT>
chapter body here
</CHAPTER_CONTENT>

Anything outside the markers is treated as commentary and discarded.

Write the chapter:`)
	return b.String()
}

// positionRequirements returns extra directives for structurally special
// chapters: the opening, the penultimate chapter and the finale.
func positionRequirements(number, total int) string {
	switch {
	case number == total:
		return `This is the final chapter. Resolve every major plot line and the core
conflict, show the protagonist's final state, and give the story a complete,
satisfying ending. Do not leave major threads unresolved, and make the
ending unmistakably final.`
	case number == total-1:
		return `This is the penultimate chapter. Drive the main conflict toward its
climax, begin closing secondary plot lines, and build tension for the
finale. Do not introduce new major conflicts or characters.`
	case number <= 2:
		return `This is an opening chapter. Keep establishing the world and the
character relationships while advancing the central conflict, and balance
exposition against forward motion.`
	default:
		return ""
	}
}

func summaryPrompt(title, body string) string {
	return fmt.Sprintf(`Summarize the novel chapter below. The summary must:
1. Preserve the key plot developments.
2. Record important character actions and dialogue points.
3. Highlight details that matter to the larger story.
4. Stay between 150 and 250 words.

Chapter title: %s

Chapter text:
%s

Write the summary:`, title, body)
}

func reviewPrompt(characters []string, priorSummaries []string, title, body string) string {
	var b strings.Builder
	b.WriteString("Check the chapter draft below for continuity.\n")
	fmt.Fprintf(&b, "\nCharacters:\n%s\n", strings.Join(characters, "\n"))
	if len(priorSummaries) > 0 {
		fmt.Fprintf(&b, "\nEarlier events:\n%s\n", strings.Join(priorSummaries, "\n"))
	}
	fmt.Fprintf(&b, "\nChapter title: %s\n\nDraft:\n%s\n", title, body)
	b.WriteString(`
If the draft is consistent with the characters and earlier events, respond
with the single word CONSISTENT. Otherwise respond with a corrected version
of the full chapter wrapped in <CHAPTER_CONTENT> markers.`)
	return b.String()
}

// extractChapterContent pulls the chapter body out of the content markers.
// When the markers are missing the trimmed raw text is used as-is.
func extractChapterContent(raw string) string {
	if m := chapterContentPattern.FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(raw)
}

// stripJSONFence removes a markdown code fence around a JSON payload.
func stripJSONFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// firstSentences returns the first n sentences of text, used as a fallback
// summary when the summary call fails.
func firstSentences(text string, n int) string {
	var out strings.Builder
	count := 0
	for _, r := range text {
		out.WriteRune(r)
		if r == '.' || r == '!' || r == '?' || r == '。' || r == '！' || r == '？' {
			count++
			if count >= n {
				break
			}
		}
	}
	return strings.TrimSpace(out.String())
}
