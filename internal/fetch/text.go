package fetch

import (
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

// minArticleRunes is the shortest readability result accepted before
// falling back to the whole-page walk.
const minArticleRunes = 200

// ExtractText returns the title and main text of an HTML document. It uses
// readability first and falls back to every visible text node.
func ExtractText(documentHTML, pageURL string) (title, text string) {
	documentHTML = strings.TrimSpace(documentHTML)
	if documentHTML == "" {
		return "", ""
	}

	if parsed, err := url.Parse(pageURL); err == nil {
		article, err := readability.FromReader(strings.NewReader(documentHTML), parsed)
		if err == nil {
			title = strings.TrimSpace(article.Title)
			text = strings.TrimSpace(article.TextContent)
			if len([]rune(text)) >= minArticleRunes {
				return title, text
			}
		}
	}

	doc, err := html.Parse(strings.NewReader(documentHTML))
	if err != nil {
		return title, text
	}
	if title == "" {
		title = findTitle(doc)
	}
	return title, visibleText(doc)
}

// visibleText joins text nodes, skipping script, style and embedded content.
func visibleText(n *html.Node) string {
	var buf strings.Builder

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe", "svg", "head", "nav", "footer":
				return
			}
		}
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				if buf.Len() > 0 {
					buf.WriteByte(' ')
				}
				buf.WriteString(text)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(n)
	return buf.String()
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
		return strings.TrimSpace(n.FirstChild.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}
