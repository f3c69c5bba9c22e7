package fetch

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// CleanedHTML is rendered page markup reduced to what helps answer
// questions about the page.
type CleanedHTML struct {
	HTML        string
	Title       string
	Description string
	Truncated   bool
}

var (
	skippedElements = setOf("head", "script", "style", "noscript", "template",
		"iframe", "embed", "object", "svg", "canvas", "link", "meta")

	blockElements = setOf("div", "p", "section", "article", "header", "footer",
		"nav", "main", "aside", "h1", "h2", "h3", "h4", "h5", "h6", "ul", "ol",
		"li", "dl", "dt", "dd", "table", "thead", "tbody", "tr", "td", "th",
		"form", "fieldset", "blockquote", "pre", "figure", "figcaption")

	voidElements = setOf("area", "base", "br", "col", "embed", "hr", "img",
		"input", "link", "meta", "param", "source", "track", "wbr")

	globalAttributes = setOf("title", "role", "aria-label", "lang")
)

func setOf(items ...string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}

// CleanHTML parses rawHTML and rebuilds the body without scripts, styles,
// comments, and presentational attributes. Text stops once maxLength bytes
// have been written and "..." marks the cut; elements still open at that
// point are closed so the result stays well-formed. maxLength <= 0 means no
// limit.
func CleanHTML(rawHTML string, maxLength int) (*CleanedHTML, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	c := &cleaner{maxLength: maxLength}
	truncated := c.walk(doc, 0)

	return &CleanedHTML{
		HTML:        strings.TrimSpace(c.out.String()),
		Title:       extractTitle(doc),
		Description: extractMetaDescription(doc),
		Truncated:   truncated,
	}, nil
}

type cleaner struct {
	out       strings.Builder
	length    int
	maxLength int
}

func (c *cleaner) full() bool {
	return c.maxLength > 0 && c.length >= c.maxLength
}

// walk writes n and its descendants, returning true once output was truncated.
func (c *cleaner) walk(n *html.Node, depth int) bool {
	if c.full() {
		return true
	}

	switch n.Type {
	case html.CommentNode, html.DoctypeNode:
		return false
	case html.TextNode:
		return c.text(n.Data)
	case html.ElementNode:
		tag := strings.ToLower(n.Data)
		if skippedElements[tag] {
			return false
		}
		if tag == "html" || tag == "body" {
			return c.children(n, depth)
		}
		return c.element(n, tag, depth)
	default:
		return c.children(n, depth)
	}
}

func (c *cleaner) children(n *html.Node, depth int) bool {
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if c.walk(child, depth) {
			return true
		}
	}
	return false
}

func (c *cleaner) text(data string) bool {
	text := collapseSpace(data)
	if strings.TrimSpace(text) == "" {
		return false
	}

	if c.maxLength > 0 && c.length+len(text) > c.maxLength {
		cut := c.maxLength - c.length
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		c.out.WriteString(text[:cut])
		c.out.WriteString("...")
		c.length = c.maxLength
		return true
	}

	c.out.WriteString(text)
	c.length += len(text)
	return false
}

// collapseSpace folds whitespace runs to one space, keeping a single space
// at either edge so inline neighbours stay separated.
func collapseSpace(s string) string {
	var b strings.Builder
	space := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space {
			b.WriteByte(' ')
			space = false
		}
		b.WriteRune(r)
	}
	if space {
		b.WriteByte(' ')
	}
	return b.String()
}

func (c *cleaner) element(n *html.Node, tag string, depth int) bool {
	block := blockElements[tag]
	if block {
		c.newline(depth)
	}

	c.out.WriteString("<" + tag)
	for _, attr := range n.Attr {
		if keepAttribute(tag, attr.Key) {
			fmt.Fprintf(&c.out, ` %s="%s"`, strings.ToLower(attr.Key), html.EscapeString(attr.Val))
		}
	}
	c.out.WriteString(">")
	c.length += len(tag) + 2

	truncated := c.children(n, depth+1)

	if !voidElements[tag] {
		if block {
			c.newline(depth)
		}
		c.out.WriteString("</" + tag + ">")
		c.length += len(tag) + 3
	}

	return truncated
}

func (c *cleaner) newline(depth int) {
	c.out.WriteString("\n")
	c.out.WriteString(strings.Repeat("  ", depth))
}

// keepAttribute reports whether an attribute carries meaning for a reader
// of the page rather than for its styling or scripts.
func keepAttribute(tag, attr string) bool {
	attr = strings.ToLower(attr)
	if globalAttributes[attr] {
		return true
	}

	switch tag {
	case "a":
		return attr == "href"
	case "img":
		return attr == "src" || attr == "alt"
	case "input", "textarea", "select":
		return attr == "name" || attr == "placeholder" || attr == "value"
	case "td", "th":
		return attr == "colspan" || attr == "rowspan"
	case "time":
		return attr == "datetime"
	}
	return false
}

func extractTitle(doc *html.Node) string {
	if n := findElement(doc, func(n *html.Node) bool { return n.Data == "title" }); n != nil {
		if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
			return strings.TrimSpace(n.FirstChild.Data)
		}
	}
	return ""
}

func extractMetaDescription(doc *html.Node) string {
	n := findElement(doc, func(n *html.Node) bool {
		return n.Data == "meta" && attrValue(n, "name") == "description" && attrValue(n, "content") != ""
	})
	if n == nil {
		return ""
	}
	return strings.TrimSpace(attrValue(n, "content"))
}

func findElement(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if found := findElement(child, match); found != nil {
			return found
		}
	}
	return nil
}

func attrValue(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}
