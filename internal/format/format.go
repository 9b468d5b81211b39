// Package format shapes raw answer text into a typed response envelope.
//
// Detection is rule-based and runs in a fixed order: an explicit chart
// marker wins, then pipe tables, then ranking shapes, then plain
// numbered or bulleted lists. Anything else stays text. Each kind also
// gets an HTML rendering with mandatory escaping.
package format

import (
	"encoding/json"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
)

// ChartMarker prefixes an embedded chart payload in model output.
const ChartMarker = "CHART_JSON:"

// Kind tags the detected response shape.
type Kind string

const (
	KindText    Kind = "text"
	KindTable   Kind = "table"
	KindList    Kind = "list"
	KindRanking Kind = "ranking"
	KindChart   Kind = "chart"
)

// Response is the formatted answer envelope.
type Response struct {
	Kind  Kind            `json:"kind"`
	Text  string          `json:"text"`
	HTML  string          `json:"html"`
	Table *Table          `json:"table,omitempty"`
	Items []string        `json:"items,omitempty"`
	Chart json.RawMessage `json:"chart,omitempty"`
}

// Table is a parsed pipe table.
type Table struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// Envelope wraps a one-line answer in the canonical two-section output
// format every local and cached answer uses.
func Envelope(result string) string {
	return "Thinking\n- (omitted by request)\n\nResult\n- " + result
}

var (
	reNumbered   = regexp.MustCompile(`^\s*\d+[.)]\s+`)
	reBulleted   = regexp.MustCompile(`^\s*[-*•]\s+`)
	reCitation   = regexp.MustCompile(`\[\d+\]`)
	reRankValue  = regexp.MustCompile(`^\s*\d+[.)]\s+.+?(\s[-–:(]|\[\d+\])`)
	rePipeRank   = regexp.MustCompile(`^\s*\|\s*\d+\s*\|`)
	reSeparator  = regexp.MustCompile(`^\s*\|?[\s:|-]+\|?\s*$`)
)

// rankedEntities are names whose repeated appearance in prose marks a
// ranking answer even without numbered lines.
var rankedEntities = []string{
	"gpt", "claude", "gemini", "llama", "mistral", "qwen", "deepseek",
	"grok", "copilot",
}

// Detect classifies text into a response kind.
func Detect(text string) Kind {
	if strings.Contains(text, ChartMarker) {
		return KindChart
	}
	lines := nonEmptyLines(text)
	if isTable(lines) {
		return KindTable
	}
	if isRanking(text, lines) {
		return KindRanking
	}
	if isList(lines) {
		return KindList
	}
	return KindText
}

// Format detects the shape of text and builds the full response
// envelope including the HTML rendering.
func Format(text string) Response {
	resp := Response{Kind: Detect(text), Text: text}
	switch resp.Kind {
	case KindChart:
		resp.Chart = extractChart(text)
		resp.HTML = "<pre>" + html.EscapeString(string(resp.Chart)) + "</pre>"
	case KindTable:
		resp.Table = parseTable(nonEmptyLines(text))
		resp.HTML = tableHTML(resp.Table)
	case KindRanking:
		resp.Items = enumeratedItems(text)
		resp.HTML = listHTML(resp.Items, true)
	case KindList:
		resp.Items = enumeratedItems(text)
		resp.HTML = listHTML(resp.Items, mostlyNumbered(text))
	default:
		resp.HTML = markdownHTML(text)
	}
	return resp
}

func nonEmptyLines(text string) []string {
	var out []string
	for _, ln := range strings.Split(text, "\n") {
		if strings.TrimSpace(ln) != "" {
			out = append(out, ln)
		}
	}
	return out
}

// isTable requires at least two pipe rows with two or more cells each,
// ignoring markdown separator rows.
func isTable(lines []string) bool {
	rows := 0
	for _, ln := range lines {
		t := strings.TrimSpace(ln)
		if !strings.Contains(t, "|") || reSeparator.MatchString(t) {
			continue
		}
		if len(splitCells(t)) >= 2 {
			rows++
		}
	}
	return rows >= 2
}

func isRanking(text string, lines []string) bool {
	// Numbered lines carrying a value or citation.
	valued := 0
	for _, ln := range lines {
		if reRankValue.MatchString(ln) {
			valued++
		}
		if rePipeRank.MatchString(ln) {
			valued++
		}
	}
	if valued >= 3 {
		return true
	}
	// Prose mentioning several known ranked entities plus citations.
	lower := strings.ToLower(text)
	named := 0
	for _, e := range rankedEntities {
		if strings.Contains(lower, e) {
			named++
		}
	}
	return named >= 3 && reCitation.MatchString(text)
}

func isList(lines []string) bool {
	n := 0
	for _, ln := range lines {
		if reNumbered.MatchString(ln) || reBulleted.MatchString(ln) {
			n++
		}
	}
	return n >= 2
}

// extractChart pulls the JSON payload following the chart marker. It
// returns the raw remainder when the payload does not parse so the
// caller can still show something.
func extractChart(text string) json.RawMessage {
	idx := strings.Index(text, ChartMarker)
	payload := strings.TrimSpace(text[idx+len(ChartMarker):])
	if end := balancedJSONEnd(payload); end > 0 {
		payload = payload[:end]
	}
	var check any
	if err := json.Unmarshal([]byte(payload), &check); err != nil {
		return json.RawMessage(strings.TrimSpace(text[idx+len(ChartMarker):]))
	}
	return json.RawMessage(payload)
}

// balancedJSONEnd finds the end offset of the first balanced JSON
// object or array, respecting strings.
func balancedJSONEnd(s string) int {
	if s == "" || (s[0] != '{' && s[0] != '[') {
		return -1
	}
	depth := 0
	inStr := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inStr {
			switch c {
			case '\\':
				i++
			case '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}

func splitCells(line string) []string {
	t := strings.Trim(strings.TrimSpace(line), "|")
	parts := strings.Split(t, "|")
	cells := make([]string, 0, len(parts))
	for _, p := range parts {
		cells = append(cells, strings.TrimSpace(p))
	}
	return cells
}

func parseTable(lines []string) *Table {
	tbl := &Table{}
	for _, ln := range lines {
		t := strings.TrimSpace(ln)
		if !strings.Contains(t, "|") || reSeparator.MatchString(t) {
			continue
		}
		cells := splitCells(t)
		if len(cells) < 2 {
			continue
		}
		if tbl.Headers == nil {
			tbl.Headers = cells
			continue
		}
		tbl.Rows = append(tbl.Rows, cells)
	}
	return tbl
}

// mostlyNumbered reports whether numbered list lines outnumber bullets.
func mostlyNumbered(text string) bool {
	numbered, bulleted := 0, 0
	for _, ln := range nonEmptyLines(text) {
		switch {
		case reNumbered.MatchString(ln):
			numbered++
		case reBulleted.MatchString(ln):
			bulleted++
		}
	}
	return numbered >= bulleted
}

// enumeratedItems strips list markers and returns the item lines.
func enumeratedItems(text string) []string {
	var items []string
	for _, ln := range nonEmptyLines(text) {
		switch {
		case reNumbered.MatchString(ln):
			items = append(items, strings.TrimSpace(reNumbered.ReplaceAllString(ln, "")))
		case reBulleted.MatchString(ln):
			items = append(items, strings.TrimSpace(reBulleted.ReplaceAllString(ln, "")))
		}
	}
	return items
}

func tableHTML(t *Table) string {
	var b strings.Builder
	b.WriteString("<table><thead><tr>")
	for _, h := range t.Headers {
		fmt.Fprintf(&b, "<th>%s</th>", html.EscapeString(h))
	}
	b.WriteString("</tr></thead><tbody>")
	for _, row := range t.Rows {
		b.WriteString("<tr>")
		for _, c := range row {
			fmt.Fprintf(&b, "<td>%s</td>", html.EscapeString(c))
		}
		b.WriteString("</tr>")
	}
	b.WriteString("</tbody></table>")
	return b.String()
}

func listHTML(items []string, ordered bool) string {
	tag := "ul"
	if ordered {
		tag = "ol"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "<%s>", tag)
	for _, it := range items {
		fmt.Fprintf(&b, "<li>%s</li>", html.EscapeString(it))
	}
	fmt.Fprintf(&b, "</%s>", tag)
	return b.String()
}

// markdownHTML renders markdown text. On renderer failure it falls back
// to escaped preformatted text rather than dropping the answer.
func markdownHTML(text string) string {
	var buf strings.Builder
	if err := goldmark.Convert([]byte(text), &buf); err != nil {
		return "<pre>" + html.EscapeString(text) + "</pre>"
	}
	return buf.String()
}
