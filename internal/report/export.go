package report

import (
	"bytes"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/yuin/goldmark"
)

const htmlStyle = `body{font-family:system-ui,sans-serif;max-width:52rem;margin:2rem auto;padding:0 1rem;line-height:1.55}
table{border-collapse:collapse}th,td{border:1px solid #ccc;padding:.35rem .6rem}
pre{background:#f5f5f5;padding:.75rem;overflow-x:auto}code{font-family:ui-monospace,monospace}`

// ExportHTML renders a report's markdown into one standalone HTML
// document. The title is escaped; the body is goldmark's rendering.
func ExportHTML(markdown, title string) ([]byte, error) {
	if strings.TrimSpace(title) == "" {
		title = "Report"
	}
	var body strings.Builder
	if err := goldmark.Convert([]byte(markdown), &body); err != nil {
		return nil, fmt.Errorf("render markdown: %w", err)
	}

	var b strings.Builder
	b.WriteString("<!doctype html>\n<html lang=\"en\">\n<head>\n<meta charset=\"utf-8\">\n<title>")
	b.WriteString(html.EscapeString(title))
	b.WriteString("</title>\n<style>")
	b.WriteString(htmlStyle)
	b.WriteString("</style>\n</head>\n<body>\n")
	b.WriteString(body.String())
	b.WriteString("</body>\n</html>\n")
	return []byte(b.String()), nil
}

var (
	reEmphasis = regexp.MustCompile(`\*\*|__|` + "`")
	reLink     = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
)

// ExportPDF renders a report's markdown into a simple paginated PDF.
// Headings and bullets keep their structure; inline emphasis markers
// are stripped rather than styled.
func ExportPDF(markdown, title string) ([]byte, error) {
	if strings.TrimSpace(title) == "" {
		title = "Report"
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(title, true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.MultiCell(0, 8, tr(title), "", "L", false)
	pdf.Ln(2)

	inFence := false
	for _, raw := range strings.Split(markdown, "\n") {
		line := strings.TrimRight(raw, " \t")
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			pdf.SetFont("Courier", "", 9)
			pdf.MultiCell(0, 4.5, tr(line), "", "L", false)
			continue
		}

		text := cleanInline(line)
		switch {
		case strings.HasPrefix(text, "### "):
			pdf.Ln(2)
			pdf.SetFont("Helvetica", "B", 12)
			pdf.MultiCell(0, 6, tr(strings.TrimPrefix(text, "### ")), "", "L", false)
		case strings.HasPrefix(text, "## "):
			pdf.Ln(3)
			pdf.SetFont("Helvetica", "B", 13)
			pdf.MultiCell(0, 7, tr(strings.TrimPrefix(text, "## ")), "", "L", false)
		case strings.HasPrefix(text, "# "):
			pdf.Ln(3)
			pdf.SetFont("Helvetica", "B", 15)
			pdf.MultiCell(0, 8, tr(strings.TrimPrefix(text, "# ")), "", "L", false)
		case strings.HasPrefix(text, "- ") || strings.HasPrefix(text, "* "):
			pdf.SetFont("Helvetica", "", 11)
			pdf.MultiCell(0, 5.5, tr("  -  "+text[2:]), "", "L", false)
		case strings.TrimSpace(text) == "":
			pdf.Ln(3)
		default:
			pdf.SetFont("Helvetica", "", 11)
			pdf.MultiCell(0, 5.5, tr(text), "", "L", false)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// cleanInline drops emphasis markers and collapses links to
// "text (url)".
func cleanInline(s string) string {
	s = reLink.ReplaceAllString(s, "$1 ($2)")
	return reEmphasis.ReplaceAllString(s, "")
}
