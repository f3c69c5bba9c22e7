package tui

import (
	"regexp"
	"strings"

	"github.com/alecthomas/chroma/v2/quick"
)

const (
	codeFormatter = "terminal256"
	codeStyle     = "monokai"
)

// fencePattern matches ```lang\n...``` blocks, including an unterminated
// final block.
var fencePattern = regexp.MustCompile("(?s)```([\\w+#.-]*)[ \\t]*\\n(.*?)(?:```|$)")

// renderReply word-wraps prose and syntax highlights fenced code blocks.
func renderReply(text string, width int) string {
	var out strings.Builder
	last := 0

	for _, loc := range fencePattern.FindAllStringSubmatchIndex(text, -1) {
		if prose := strings.TrimSpace(text[last:loc[0]]); prose != "" {
			out.WriteString(assistantStyle.Render(wordWrap(prose, width)))
			out.WriteString("\n")
		}
		lang := text[loc[2]:loc[3]]
		code := strings.TrimRight(text[loc[4]:loc[5]], "\n")
		out.WriteString(highlightCode(code, lang))
		out.WriteString("\n")
		last = loc[1]
	}

	if prose := strings.TrimSpace(text[last:]); prose != "" {
		out.WriteString(assistantStyle.Render(wordWrap(prose, width)))
	}
	return strings.TrimRight(out.String(), "\n")
}

// highlightCode renders code for a 256-color terminal, returning it
// unchanged when highlighting fails.
func highlightCode(code, lang string) string {
	var b strings.Builder
	if err := quick.Highlight(&b, code, lang, codeFormatter, codeStyle); err != nil {
		return code
	}
	return strings.TrimRight(b.String(), "\n")
}
