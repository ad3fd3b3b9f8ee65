package layout

import (
	"strings"

	"github.com/mattn/go-runewidth"
	"golang.org/x/net/html"

	"github.com/thereceipt/ticketprint/pkg/ticketformat"
)

const (
	receiptRule = "----------------------------------------"
	ticketRule  = "--------------------------------"
)

// suppressed reports whether a total should be left off the page
func suppressed(v ticketformat.Field) bool {
	switch v {
	case "", "0", "0.0", "0.00":
		return true
	}
	return false
}

// padEnd pads s with spaces up to the given display width
func padEnd(s string, width int) string {
	return runewidth.FillRight(s, width)
}

// padStart right-aligns s within the given display width
func padStart(s string, width int) string {
	return runewidth.FillLeft(s, width)
}

// fit pads s to exactly width columns, truncating when it is wider
func fit(s string, width int) string {
	return runewidth.Truncate(padEnd(s, width), width, "")
}

// wrap splits s into fragments no wider than width columns. Joining the
// fragments gives back s.
func wrap(s string, width int) []string {
	if s == "" {
		return nil
	}

	var (
		lines []string
		cur   strings.Builder
		w     int
	)
	for _, r := range s {
		rw := runewidth.RuneWidth(r)
		if w+rw > width && cur.Len() > 0 {
			lines = append(lines, cur.String())
			cur.Reset()
			w = 0
		}
		cur.WriteRune(r)
		w += rw
	}
	if cur.Len() > 0 {
		lines = append(lines, cur.String())
	}
	return lines
}

func splitLines(s string) []string {
	return strings.Split(s, "\n")
}

var blockTags = map[string]bool{
	"p": true, "div": true, "li": true, "ul": true, "ol": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"tr": true, "table": true, "blockquote": true,
}

// plainText renders terms-and-conditions markup as printable text. Line
// breaks and block ends become newlines, entities are decoded and tags
// are dropped.
func plainText(markup string) string {
	var sb strings.Builder
	newline := func() {
		s := sb.String()
		if s != "" && !strings.HasSuffix(s, "\n") {
			sb.WriteByte('\n')
		}
	}

	z := html.NewTokenizer(strings.NewReader(markup))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return tidyLines(sb.String())
		case html.TextToken:
			sb.WriteString(collapseSpaces(string(z.Text())))
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch tag := string(name); {
			case tag == "br":
				sb.WriteByte('\n')
			case blockTags[tag]:
				newline()
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if blockTags[string(name)] {
				newline()
			}
		}
	}
}

// collapseSpaces folds runs of spaces and tabs into one space
func collapseSpaces(s string) string {
	var sb strings.Builder
	space := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\r' {
			if !space {
				sb.WriteByte(' ')
			}
			space = true
			continue
		}
		space = false
		sb.WriteRune(r)
	}
	return sb.String()
}

// tidyLines trims every line and drops blank lines at either end
func tidyLines(s string) string {
	lines := splitLines(s)
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	for len(lines) > 0 && lines[0] == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}
