package research

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"north-backend/domain/tree"
)

// MaxCandidates is the most results any source returns.
const MaxCandidates = 5

// boilerplate elements are dropped before page text is extracted.
var boilerplate = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Nav:      true,
	atom.Footer:   true,
	atom.Header:   true,
	atom.Aside:    true,
	atom.Noscript: true,
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(a.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// findFirst returns the first element under n (n included) matching pred.
func findFirst(n *html.Node, pred func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && pred(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, pred); found != nil {
			return found
		}
	}
	return nil
}

func findAll(n *html.Node, pred func(*html.Node) bool, out []*html.Node) []*html.Node {
	if n.Type == html.ElementNode && pred(n) {
		return append(out, n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = findAll(c, pred, out)
	}
	return out
}

var inline = map[atom.Atom]bool{
	atom.A:      true,
	atom.Abbr:   true,
	atom.B:      true,
	atom.Code:   true,
	atom.Em:     true,
	atom.I:      true,
	atom.Mark:   true,
	atom.Small:  true,
	atom.Span:   true,
	atom.Strong: true,
	atom.Sub:    true,
	atom.Sup:    true,
}

// textContent concatenates the text under n, skipping boilerplate elements,
// with runs of whitespace collapsed to one space. Block elements separate
// words; inline elements do not.
func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.CommentNode:
			return
		case html.ElementNode:
			if boilerplate[n.DataAtom] {
				return
			}
			if !inline[n.DataAtom] {
				b.WriteByte(' ')
				defer b.WriteByte(' ')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

// ParseDuckDuckGo extracts result links from a DuckDuckGo HTML results page.
// Redirect links are unwrapped to their target.
func ParseDuckDuckGo(doc string) []tree.SearchResultItem {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return []tree.SearchResultItem{}
	}

	results := findAll(root, func(n *html.Node) bool { return hasClass(n, "result") }, nil)
	items := make([]tree.SearchResultItem, 0, MaxCandidates)
	for _, r := range results {
		link := findFirst(r, func(n *html.Node) bool { return hasClass(n, "result__a") })
		if link == nil {
			continue
		}
		href := attr(link, "href")
		if href == "" {
			continue
		}
		item := tree.SearchResultItem{
			Title: textContent(link),
			URL:   unwrapRedirect(href),
		}
		if snippet := findFirst(r, func(n *html.Node) bool { return hasClass(n, "result__snippet") }); snippet != nil {
			item.Snippet = textContent(snippet)
		}
		items = append(items, item)
		if len(items) == MaxCandidates {
			break
		}
	}
	return items
}

func unwrapRedirect(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if strings.Contains(u.Hostname(), "duckduckgo.com") {
		if target := u.Query().Get("uddg"); target != "" {
			return target
		}
	}
	if u.Scheme == "" && strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	return href
}

// ExtractText returns the readable text of an HTML page body with
// navigation and script content removed.
func ExtractText(doc string) string {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return ""
	}
	if body := findFirst(root, func(n *html.Node) bool { return n.DataAtom == atom.Body }); body != nil {
		return textContent(body)
	}
	return textContent(root)
}

// stripTags removes markup from an HTML fragment such as a search snippet.
func stripTags(fragment string) string {
	container := &html.Node{Type: html.ElementNode, Data: "span", DataAtom: atom.Span}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
	})
	if err != nil {
		return fragment
	}
	for _, n := range nodes {
		container.AppendChild(n)
	}
	return textContent(container)
}

// truncateRunes cuts s to at most n runes.
func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
