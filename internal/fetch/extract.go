package fetch

import (
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// boilerplate elements are excluded from extracted text. Head is skipped
// because the title is pulled out separately.
var boilerplate = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Iframe:   true,
	atom.Svg:      true,
	atom.Head:     true,
	atom.Nav:      true,
	atom.Header:   true,
	atom.Footer:   true,
	atom.Aside:    true,
	atom.Form:     true,
}

// extractReadable parses HTML and returns the page title and its visible
// text with boilerplate removed.
func extractReadable(raw string) (string, string) {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return "", flattenTokens(raw)
	}

	var b strings.Builder
	visibleText(doc, &b)
	return pageTitle(doc), collapseBlankLines(b.String())
}

// pageTitle walks the DOM for the first <title> element.
func pageTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.DataAtom == atom.Title {
		return strings.TrimSpace(innerText(n))
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := pageTitle(c); t != "" {
			return t
		}
	}
	return ""
}

// innerText concatenates the text of all descendants.
func innerText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(innerText(c))
	}
	return b.String()
}

// visibleText recursively collects readable text from the DOM.
func visibleText(n *html.Node, w *strings.Builder) {
	if n.Type == html.ElementNode {
		if boilerplate[n.DataAtom] {
			return
		}
		if blockLevel(n.DataAtom) && w.Len() > 0 {
			w.WriteString("\n\n")
		}
	}

	if n.Type == html.TextNode {
		if text := strings.TrimSpace(n.Data); text != "" {
			w.WriteString(text)
			w.WriteString(" ")
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		visibleText(c, w)
	}

	if n.Type == html.ElementNode && (n.DataAtom == atom.Br || n.DataAtom == atom.Li) {
		w.WriteString("\n")
	}
}

// blockLevel reports whether the element typically renders as a block.
func blockLevel(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Section, atom.Article, atom.Main,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Blockquote, atom.Pre, atom.Ul, atom.Ol, atom.Table,
		atom.Tr, atom.Dl, atom.Dd, atom.Dt, atom.Figcaption, atom.Figure,
		atom.Details, atom.Summary, atom.Hr:
		return true
	}
	return false
}

// collapseBlankLines normalizes whitespace: runs of spaces within lines
// collapse to one, and consecutive blank lines collapse to one.
func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	cleaned := make([]string, 0, len(lines))
	prevEmpty := false

	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if prevEmpty {
				continue
			}
			prevEmpty = true
		} else {
			prevEmpty = false
		}
		cleaned = append(cleaned, line)
	}

	return strings.TrimSpace(strings.Join(cleaned, "\n"))
}

// flattenTokens strips tags with the tokenizer when full parsing fails.
func flattenTokens(s string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder

	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			if tokenizer.Err() == io.EOF {
				return collapseBlankLines(b.String())
			}
			return collapseBlankLines(b.String())
		case html.TextToken:
			b.WriteString(tokenizer.Token().Data)
			b.WriteString(" ")
		}
	}
}
