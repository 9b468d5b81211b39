package fetch

import (
	"fmt"
	"regexp"
	"strings"
)

// urlPattern matches http(s) URLs in free text.
var urlPattern = regexp.MustCompile(`https?://[^\s<>"')\]]+`)

// ExtractURLs returns the http(s) URLs found in text, deduplicated in
// order of first appearance. max caps the result; 0 means no cap.
func ExtractURLs(text string, max int) []string {
	matches := urlPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(matches))
	var urls []string
	for _, m := range matches {
		m = strings.TrimRight(m, ".,;:!?")
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		urls = append(urls, m)
		if max > 0 && len(urls) >= max {
			break
		}
	}
	return urls
}

// excerptChars caps per-page content in FormatContext.
const excerptChars = 2000

// FormatContext renders fetched pages as a numbered block whose entries
// the model can cite as [n]. Format matches the web search context.
func FormatContext(pages []*Page) string {
	if len(pages) == 0 {
		return ""
	}

	var b strings.Builder
	for i, p := range pages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		title := p.Title
		if title == "" {
			title = p.URL
		}
		fmt.Fprintf(&b, "[%d] %s — %s\n", i+1, title, p.URL)
		b.WriteString(clampRunes(p.Content, excerptChars))
	}
	return b.String()
}
