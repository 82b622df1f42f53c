package askdbctl

import (
	"fmt"
	"io"
	"strings"

	"github.com/pterm/pterm"
)

const noResults = "No results returned"

// renderer prints the block layout: one titled box per answer part. In plain
// mode the same blocks are written as "Title:" headed sections.
type renderer struct {
	w     io.Writer
	plain bool
}

func newRenderer(w io.Writer, plain bool) *renderer {
	return &renderer{w: w, plain: plain}
}

func (r *renderer) answer(result askResult) {
	title := "Answer"
	if result.Status != "" && result.Status != "answered" && result.Status != "empty_question" {
		title = "Answer (failed while " + strings.ReplaceAll(result.Stage, "_", " ") + ")"
	}
	r.block(title, result.Answer)
	if result.SQL != "" {
		r.block("Generated SQL", result.SQL)
	}
	if result.Status == "answered" {
		raw := result.RawResult
		if raw == "" {
			raw = noResults
		}
		r.block("Raw Results", raw)
	}
}

func (r *renderer) block(title, body string) {
	if r.plain {
		_, _ = fmt.Fprintf(r.w, "%s:\n%s\n\n", title, body)
		return
	}
	styled := pterm.NewStyle(pterm.FgLightCyan, pterm.Bold).Sprint(title)
	_, _ = fmt.Fprintln(r.w, pterm.DefaultBox.WithTitle(styled).WithPadding(1).Sprint(body))
}

func (r *renderer) list(title string, items []string) {
	if r.plain {
		_, _ = fmt.Fprintf(r.w, "%s:\n", title)
		for i, item := range items {
			_, _ = fmt.Fprintf(r.w, "%d. %s\n", i+1, item)
		}
		return
	}
	_, _ = fmt.Fprintln(r.w, pterm.NewStyle(pterm.FgLightCyan, pterm.Bold).Sprint(title))
	bullets := make([]pterm.BulletListItem, 0, len(items))
	for _, item := range items {
		bullets = append(bullets, pterm.BulletListItem{Level: 0, Text: item})
	}
	rendered, err := pterm.DefaultBulletList.WithItems(bullets).Srender()
	if err != nil {
		for _, item := range items {
			_, _ = fmt.Fprintln(r.w, "  • "+item)
		}
		return
	}
	_, _ = fmt.Fprint(r.w, rendered)
}

func (r *renderer) title(text string) {
	if r.plain {
		_, _ = fmt.Fprintln(r.w, text)
		return
	}
	_, _ = fmt.Fprintln(r.w, pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint(text))
}

func (r *renderer) line(text string) {
	_, _ = fmt.Fprintln(r.w, text)
}

func (r *renderer) prompt() {
	if r.plain {
		_, _ = fmt.Fprint(r.w, "askdb> ")
		return
	}
	_, _ = fmt.Fprint(r.w, pterm.NewStyle(pterm.FgGreen).Sprint("askdb> "))
}

func (r *renderer) failure(err error) {
	if r.plain {
		_, _ = fmt.Fprintf(r.w, "Error: %v\n", err)
		return
	}
	_, _ = fmt.Fprintln(r.w, pterm.NewStyle(pterm.FgRed, pterm.Bold).Sprint("Error: ")+err.Error())
}
