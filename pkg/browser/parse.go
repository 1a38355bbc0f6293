package browser

import (
	"net/http/cookiejar"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

func newCookieJar() (*cookiejar.Jar, error) {
	return cookiejar.New(nil)
}

// skippedTags are elements whose text content is never user-visible.
var skippedTags = map[string]bool{
	"script": true, "style": true, "noscript": true,
	"head": true, "iframe": true, "svg": true,
}

// visibleText walks the DOM and collects text nodes, collapsing runs of
// whitespace.
func visibleText(doc *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skippedTags[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				sb.WriteString(t)
				sb.WriteByte(' ')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return strings.TrimSpace(sb.String())
}

// parseSearchResults extracts organic results from a DuckDuckGo HTML page.
// Anchors carry class result__a; snippets carry result__snippet.
func parseSearchResults(doc *html.Node) []SearchResult {
	var results []SearchResult
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" && hasClass(n, "result__a") {
			r := SearchResult{
				Title: strings.TrimSpace(nodeText(n)),
				URL:   cleanResultURL(attr(n, "href")),
			}
			if r.URL != "" {
				results = append(results, r)
			}
		}
		if n.Type == html.ElementNode && hasClass(n, "result__snippet") {
			if len(results) > 0 && results[len(results)-1].Snippet == "" {
				results[len(results)-1].Snippet = strings.TrimSpace(nodeText(n))
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return results
}

// cleanResultURL unwraps DuckDuckGo redirect links (/l/?uddg=<encoded>).
func cleanResultURL(href string) string {
	if href == "" {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if strings.Contains(u.Path, "/l/") {
		if target := u.Query().Get("uddg"); target != "" {
			return target
		}
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}
	return u.String()
}

// findLink returns the href of the first anchor whose text contains the
// fragment, case-insensitively.
func findLink(doc *html.Node, fragment string) string {
	fragment = strings.ToLower(fragment)
	var found string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "a" {
			if strings.Contains(strings.ToLower(nodeText(n)), fragment) {
				if href := attr(n, "href"); href != "" {
					found = href
					return
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return found
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
