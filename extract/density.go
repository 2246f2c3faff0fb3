package extract

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// minDensityChars is the smallest subtree text length the density scorer
// will consider a candidate article body.
const minDensityChars = 200

// Density extracts the article body using text density analysis: it finds
// the DOM subtree with the highest text-to-markup ratio, after filtering
// boilerplate (nav, footer, sidebar, ads) and link-heavy regions.
//
// Semantic landmarks (<main>, <article>) are tried first since publishers
// that use them are almost always right.
func Density(rawHTML string) (*Region, error) {
	doc, err := Parse(rawHTML)
	if err != nil {
		return nil, err
	}
	return DensityFromDoc(doc), nil
}

// DensityFromDoc is Density on an already-parsed document. Returns a Region
// with empty Text when nothing plausible is found.
func DensityFromDoc(doc *html.Node) *Region {
	landmarks := findLandmarks(doc)
	if len(landmarks) > 0 {
		var texts, htmls []string
		for _, n := range landmarks {
			if isBoilerplate(n) {
				continue
			}
			text := collectText(n)
			if len(text) >= minDensityChars {
				texts = append(texts, text)
				htmls = append(htmls, renderNode(n))
			}
		}
		if len(texts) > 0 {
			return &Region{
				Text: strings.Join(texts, "\n\n"),
				HTML: strings.Join(htmls, "\n"),
			}
		}
	}

	body := findBody(doc)
	if body == nil {
		body = doc
	}

	best := findDensestNode(body)
	if best == nil {
		return &Region{}
	}
	return &Region{Text: collectText(best), HTML: renderNode(best)}
}

type nodeScore struct {
	node     *html.Node
	textLen  int
	density  float64
	linkDens float64 // fraction of text inside <a> tags
}

// findDensestNode walks the DOM and finds the node with highest content density.
func findDensestNode(root *html.Node) *html.Node {
	var candidates []nodeScore

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type != html.ElementNode {
			return
		}
		if isBoilerplate(n) {
			return
		}
		if !isContentTag(n.DataAtom) && n.DataAtom != atom.Body {
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				walk(c)
			}
			return
		}

		text := collectText(n)
		textLen := len(text)
		if textLen < minDensityChars {
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				walk(c)
			}
			return
		}

		markupLen := len(renderNode(n))
		if markupLen == 0 {
			markupLen = 1
		}

		linkText := collectLinkText(n)

		candidates = append(candidates, nodeScore{
			node:     n,
			textLen:  textLen,
			density:  float64(textLen) / float64(markupLen),
			linkDens: float64(len(linkText)) / float64(textLen),
		})

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(root)

	var best *nodeScore
	var bestScore float64
	for i := range candidates {
		c := &candidates[i]
		if c.linkDens > 0.5 {
			continue // mostly links - probably navigation
		}
		score := c.density * logScale(c.textLen) * (1 - c.linkDens)
		if score > bestScore {
			bestScore = score
			best = c
		}
	}

	if best == nil {
		return nil
	}
	return best.node
}

// logScale returns a log-based scale factor for text length.
func logScale(n int) float64 {
	if n <= 0 {
		return 0
	}
	scale := 1.0
	v := n
	for v > 100 {
		scale += 1
		v /= 2
	}
	return scale
}

// collectLinkText extracts text only from <a> elements.
func collectLinkText(n *html.Node) string {
	var sb strings.Builder
	var f func(*html.Node, bool)
	f = func(n *html.Node, inLink bool) {
		if n.Type == html.ElementNode && n.DataAtom == atom.A {
			inLink = true
		}
		if n.Type == html.TextNode && inLink {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				sb.WriteString(text)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c, inLink)
		}
	}
	f(n, false)
	return sb.String()
}

// findLandmarks returns semantic HTML5 content elements, preferring <article>.
func findLandmarks(doc *html.Node) []*html.Node {
	for _, tag := range []atom.Atom{atom.Article, atom.Main} {
		nodes := findAllByTag(doc, tag)
		if len(nodes) > 0 {
			return nodes
		}
	}
	return nil
}

func findAllByTag(root *html.Node, tag atom.Atom) []*html.Node {
	var results []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == tag {
			results = append(results, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return results
}

func findBody(doc *html.Node) *html.Node {
	var body *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if body != nil {
			return
		}
		if n.Type == html.ElementNode && n.DataAtom == atom.Body {
			body = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return body
}

func isContentTag(a atom.Atom) bool {
	switch a {
	case atom.Main, atom.Article, atom.Section, atom.Div, atom.P,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Blockquote, atom.Pre, atom.Ul, atom.Ol, atom.Li,
		atom.Figure, atom.Figcaption:
		return true
	}
	return false
}

// isBoilerplate checks if a node is likely boilerplate (nav, footer, etc).
func isBoilerplate(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	switch n.DataAtom {
	case atom.Nav, atom.Footer, atom.Header, atom.Aside:
		return true
	}
	for _, attr := range n.Attr {
		if attr.Key == "class" || attr.Key == "id" {
			lower := strings.ToLower(attr.Val)
			for _, pattern := range boilerplatePatterns {
				if strings.Contains(lower, pattern) {
					return true
				}
			}
		}
		if attr.Key == "role" {
			switch attr.Val {
			case "navigation", "banner", "contentinfo", "complementary":
				return true
			}
		}
	}
	return false
}

var boilerplatePatterns = []string{
	"sidebar", "footer", "header", "navbar", "menu", "breadcrumb",
	"cookie", "banner", "advert", "social", "share", "comment",
	"related", "widget", "popup", "modal", "newsletter-signup",
	"paywall-prompt", "subscription-box",
}
