// Package notify formats run summaries for chat channels and sends the
// optional e-mail digest.
package notify

import (
	"strings"
	"unicode/utf8"
)

const (
	DefaultCellWidth = 7
	// DefaultMaxChars stays under the 3000 character limit of a Slack section.
	DefaultMaxChars = 2900

	tableCells    = 6
	truncatedLine = "... (truncated; see artifact)"
)

var escaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	"`", "\u02cb",
	"\n", " ",
	"\r", " ",
	"@", "@\u200b",
)

// Escape neutralises Slack link syntax, code-span backticks, line breaks and
// @mentions in untrusted text.
func Escape(s string) string {
	return escaper.Replace(s)
}

// Row is one table line: a label, up to six cells and a free-form suffix.
type Row struct {
	Label  string
	Cells  []string
	Suffix string
}

// RenderTable renders a fixed-width code block headed by the tenant. The
// result never exceeds maxChars; dropped rows are replaced by a marker line.
func RenderTable(tenant string, rows []Row, cellWidth, maxChars int) string {
	if cellWidth <= 0 {
		cellWidth = DefaultCellWidth
	}
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}

	labelWidth := 10
	if len(rows) > 0 {
		labelWidth = 0
		for _, r := range rows {
			if n := utf8.RuneCountInString(r.Label); n > labelWidth {
				labelWidth = n
			}
		}
	}

	var body []string
	for i, r := range rows {
		if i == 1 {
			seps := make([]string, tableCells)
			for j := range seps {
				seps[j] = strings.Repeat("-", cellWidth)
			}
			body = append(body, strings.Repeat("-", labelWidth)+"-+-"+strings.Join(seps, "-+-"))
		}
		cells := make([]string, tableCells)
		for j := range cells {
			v := ""
			if j < len(r.Cells) {
				v = r.Cells[j]
			}
			cells[j] = center(clip(strings.TrimSpace(v), cellWidth), cellWidth)
		}
		line := padRight(r.Label, labelWidth) + " | " + strings.Join(cells, " | ") + r.Suffix
		body = append(body, strings.TrimRight(line, " \t"))
	}

	head := "🏢 `" + Escape(tenant) + "`"
	join := func(lines []string, truncated bool) string {
		out := append([]string{head, "```"}, lines...)
		if truncated {
			out = append(out, truncatedLine)
		}
		out = append(out, "```")
		return strings.TrimRight(strings.Join(out, "\n"), " \n\t")
	}

	if full := join(body, false); utf8.RuneCountInString(full) <= maxChars {
		return full
	}
	var kept []string
	for _, line := range body {
		if utf8.RuneCountInString(join(append(kept, line), true)) > maxChars {
			break
		}
		kept = append(kept, line)
	}
	if len(kept) == 0 {
		return strings.TrimRight(clip(head+"\n"+truncatedLine, maxChars), " \n\t")
	}
	return join(kept, true)
}

func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func padRight(s string, width int) string {
	if n := utf8.RuneCountInString(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}

// center pads s to width. With an odd margin the extra space goes left when
// width is odd and right otherwise.
func center(s string, width int) string {
	n := utf8.RuneCountInString(s)
	if n >= width {
		return s
	}
	margin := width - n
	left := margin/2 + (margin & width & 1)
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", margin-left)
}
