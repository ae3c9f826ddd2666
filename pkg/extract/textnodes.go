package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// TextLeaves walks the subtree under sel in document order and returns every
// non-empty trimmed text node. The positional heuristics in this package all
// operate on this flattened list, so the ordering must match the DOM exactly.
func TextLeaves(sel *goquery.Selection) []string {
	var texts []string
	for _, node := range sel.Nodes {
		collectTextNodes(node, &texts)
	}
	return texts
}

func collectTextNodes(n *html.Node, texts *[]string) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			if t := strings.TrimSpace(c.Data); t != "" {
				*texts = append(*texts, t)
			}
		case html.ElementNode:
			collectTextNodes(c, texts)
		}
	}
}

// AnchorTexts returns the trimmed non-empty text of every anchor under sel
func AnchorTexts(sel *goquery.Selection) []string {
	var links []string
	sel.Find("a").Each(func(_ int, a *goquery.Selection) {
		if t := strings.TrimSpace(a.Text()); t != "" {
			links = append(links, t)
		}
	})
	return links
}
