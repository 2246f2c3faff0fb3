// Package extract implements the article content extraction engine.
//
// It turns raw publisher HTML into article text through selector application
// (CSS via cascadia, XPath via htmlquery), a text-density heuristic for
// pages with no usable selector, and a shared cleaner that strips
// boilerplate from extracted text.
//
// The pipeline: raw HTML → parse → select region → collect text → clean.
package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// SelectorType discriminates CSS selectors from XPath expressions.
type SelectorType string

const (
	SelectorCSS   SelectorType = "css"
	SelectorXPath SelectorType = "xpath"
)

// Region is a selected portion of a document: its visible text and the
// HTML it was rendered from.
type Region struct {
	Text string
	HTML string
}

// minRegionChars filters out trivially small matches (bylines, captions)
// when a selector matches multiple nodes.
const minRegionChars = 50

// Parse parses raw HTML into a DOM tree.
func Parse(rawHTML string) (*html.Node, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("parse HTML: %w", err)
	}
	return doc, nil
}

// ApplySelector applies a CSS or XPath selector to raw HTML and returns the
// combined region of all matches with enough text. The selector comes from
// the cache or from an LLM, so compile errors are expected and returned,
// never panicked.
func ApplySelector(rawHTML, selector string, typ SelectorType) (*Region, error) {
	doc, err := Parse(rawHTML)
	if err != nil {
		return nil, err
	}
	return ApplySelectorToDoc(doc, selector, typ)
}

// ApplySelectorToDoc is ApplySelector on an already-parsed document.
func ApplySelectorToDoc(doc *html.Node, selector string, typ SelectorType) (*Region, error) {
	var matches []*html.Node

	switch typ {
	case SelectorXPath:
		nodes, err := htmlquery.QueryAll(doc, selector)
		if err != nil {
			return nil, fmt.Errorf("xpath %q: %w", selector, err)
		}
		matches = nodes
	case SelectorCSS, "":
		sel, err := cascadia.Compile(selector)
		if err != nil {
			return nil, fmt.Errorf("css %q: %w", selector, err)
		}
		matches = sel.MatchAll(doc)
	default:
		return nil, fmt.Errorf("unknown selector type %q", typ)
	}

	var texts []string
	var htmls []string
	for _, n := range matches {
		text := collectText(n)
		if len(text) >= minRegionChars {
			texts = append(texts, text)
			htmls = append(htmls, renderNode(n))
		}
	}
	if len(texts) == 0 {
		return nil, fmt.Errorf("no content matched selector %q", selector)
	}

	return &Region{
		Text: strings.Join(texts, "\n\n"),
		HTML: strings.Join(htmls, "\n"),
	}, nil
}

// Title extracts the page <title> text.
func Title(rawHTML string) string {
	doc, err := Parse(rawHTML)
	if err != nil {
		return ""
	}
	return findTitle(doc)
}

func findTitle(doc *html.Node) string {
	var title string
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Title {
			if n.FirstChild != nil {
				title = strings.TrimSpace(n.FirstChild.Data)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(doc)
	return title
}

// VisibleText extracts all text a reader would see: script, style, noscript
// and style-hidden nodes are excluded. This is what the validators judge.
func VisibleText(rawHTML string) string {
	doc, err := Parse(rawHTML)
	if err != nil {
		return ""
	}
	return collectText(doc)
}

// WordCount counts whitespace-separated tokens.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// renderNode serialises an HTML node subtree back to a string.
func renderNode(n *html.Node) string {
	var buf bytes.Buffer
	html.Render(&buf, n)
	return buf.String()
}

// collectText extracts visible text from a node subtree.
func collectText(n *html.Node) string {
	var sb strings.Builder
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(text)
			}
		}
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript, atom.Title, atom.Template:
				return
			}
			if hasHiddenStyle(n) {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(n)
	return sb.String()
}

func hasHiddenStyle(n *html.Node) bool {
	for _, a := range n.Attr {
		if a.Key != "style" {
			continue
		}
		lower := strings.ToLower(a.Val)
		if strings.Contains(lower, "display:none") ||
			strings.Contains(lower, "display: none") ||
			strings.Contains(lower, "visibility:hidden") ||
			strings.Contains(lower, "visibility: hidden") {
			return true
		}
	}
	return false
}

func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}
