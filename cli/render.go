package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/richinex/verity/analysis"
	"github.com/richinex/verity/events"
)

var (
	successIcon = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).SetString("✓")
	errorIcon   = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).SetString("✗")
	searchIcon  = lipgloss.NewStyle().Foreground(lipgloss.Color("4")).SetString("⌕")
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	headerStyle = lipgloss.NewStyle().Bold(true)

	thinkingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("6")).
			Italic(true)

	verdictBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8")).
			Padding(0, 1).
			MarginTop(1)
)

var verdictColors = map[analysis.VerdictType]lipgloss.Color{
	analysis.TypeLikelyTrue:  lipgloss.Color("2"),
	analysis.TypePartlyFalse: lipgloss.Color("3"),
	analysis.TypeLikelyFalse: lipgloss.Color("1"),
}

var statusIcons = map[string]string{
	analysis.StatusPositive: "+",
	analysis.StatusWarning:  "!",
	analysis.StatusNegative: "-",
}

// Renderer draws streaming events on a terminal. It implements
// events.Emitter.
type Renderer struct {
	w          io.Writer
	showAnswer bool
	midLine    bool
}

// NewRenderer returns a renderer writing to w. The raw answer text is
// JSON, so it is only echoed when showAnswer is set.
func NewRenderer(w io.Writer, showAnswer bool) *Renderer {
	return &Renderer{w: w, showAnswer: showAnswer}
}

// Emit implements events.Emitter.
func (r *Renderer) Emit(kind events.Kind, data any) error {
	fields, _ := data.(map[string]any)
	switch kind {
	case events.KindThinkingStart:
		r.println(headerStyle.Render("Thinking"))
	case events.KindThinkingDelta:
		r.print(thinkingStyle.Render(stringField(fields, "delta")))
	case events.KindSearchStart:
		r.println(fmt.Sprintf("%s %s", searchIcon, "Searching the web"))
	case events.KindSearchQuery:
		r.println(dimStyle.Render("  " + stringField(fields, "query")))
	case events.KindSearchComplete:
		r.println(fmt.Sprintf("%s %s", successIcon, "Search complete"))
	case events.KindAnswerStart:
		r.println(headerStyle.Render("Answering"))
	case events.KindAnswerDelta:
		if r.showAnswer {
			r.print(stringField(fields, "delta"))
		}
	case events.KindComplete:
		r.endLine()
	case events.KindError:
		r.println(fmt.Sprintf("%s %s", errorIcon, stringField(fields, "error")))
	}
	return nil
}

// Result draws the final verdict or failure.
func (r *Renderer) Result(res analysis.Result) error {
	r.endLine()
	if !res.Success() {
		_, err := fmt.Fprintf(r.w, "%s %s\n", errorIcon, res.ErrorMessage())
		return err
	}
	if raw, ok := res["raw"].(string); ok && res.ErrorMessage() != "" {
		_, err := fmt.Fprintf(r.w, "%s %s\n%s\n", errorIcon, res.ErrorMessage(), dimStyle.Render(raw))
		return err
	}

	v, err := res.Verdict()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(r.w, verdictBoxStyle.Render(formatVerdict(v, res.SearchQueries())))
	return err
}

func formatVerdict(v analysis.Verdict, queries []string) string {
	var b strings.Builder

	color, ok := verdictColors[v.Type]
	if !ok {
		color = lipgloss.Color("8")
	}
	title := lipgloss.NewStyle().Bold(true).Foreground(color).
		Render(fmt.Sprintf("%s (%.0f%% credible)", v.Type, v.Probability*100))
	b.WriteString(title)

	if v.Explanation != "" {
		b.WriteString("\n\n" + v.Explanation)
	}
	if len(v.AnalysisPoints) > 0 {
		b.WriteString("\n")
		for _, p := range v.AnalysisPoints {
			icon, ok := statusIcons[p.Status]
			if !ok {
				icon = "?"
			}
			fmt.Fprintf(&b, "\n%s %s", icon, p.Description)
		}
	}
	if len(v.FakeParts) > 0 {
		b.WriteString("\n\n" + headerStyle.Render("Suspect passages"))
		for _, p := range v.FakeParts {
			fmt.Fprintf(&b, "\n%q %s", p.Text, dimStyle.Render(p.Reason))
		}
	}
	if len(v.SearchReferences) > 0 {
		b.WriteString("\n\n" + headerStyle.Render("Sources"))
		for _, ref := range v.SearchReferences {
			fmt.Fprintf(&b, "\n%s %s", ref.Title, dimStyle.Render(ref.URL))
		}
	}
	if len(queries) > 0 {
		b.WriteString("\n\n" + dimStyle.Render("searched: "+strings.Join(queries, "; ")))
	}
	return b.String()
}

func (r *Renderer) print(s string) {
	if s == "" {
		return
	}
	_, _ = io.WriteString(r.w, s)
	r.midLine = !strings.HasSuffix(s, "\n")
}

func (r *Renderer) println(s string) {
	r.endLine()
	_, _ = fmt.Fprintln(r.w, s)
}

func (r *Renderer) endLine() {
	if r.midLine {
		_, _ = io.WriteString(r.w, "\n")
		r.midLine = false
	}
}

func stringField(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return s
}
