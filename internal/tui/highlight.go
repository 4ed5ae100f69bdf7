package tui

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/lipgloss"
)

// highlightJSON pretty-prints and syntax-colors a raw event payload for the
// inspector pane. Payloads that are not valid JSON come back as plain lines.
func highlightJSON(raw []byte) []string {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		return strings.Split(string(raw), "\n")
	}

	lexer := lexers.Get("json")
	if lexer == nil {
		return strings.Split(pretty.String(), "\n")
	}
	lexer = chroma.Coalesce(lexer)

	iterator, err := lexer.Tokenise(nil, pretty.String())
	if err != nil {
		return strings.Split(pretty.String(), "\n")
	}

	style := styles.Get("dracula")
	if style == nil {
		style = styles.Fallback
	}

	var lines []string
	var b strings.Builder
	for _, token := range iterator.Tokens() {
		parts := strings.Split(token.Value, "\n")
		for i, part := range parts {
			if i > 0 {
				lines = append(lines, b.String())
				b.Reset()
			}
			if part == "" {
				continue
			}
			if c := tokenColor(style, token.Type); c != "" {
				b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(c)).Render(part))
			} else {
				b.WriteString(part)
			}
		}
	}
	lines = append(lines, b.String())
	return lines
}

func tokenColor(style *chroma.Style, tt chroma.TokenType) string {
	entry := style.Get(tt)
	if entry.Colour.IsSet() {
		return entry.Colour.String()
	}
	return ""
}
