package email

import (
	"strings"

	"golang.org/x/net/html"
)

// htmlToText flattens an HTML email body into space-separated text.
// Script and style content is dropped and runs of whitespace collapse,
// so the output is stable input for the extraction regexes.
func htmlToText(src string) string {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return src
	}

	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				b.WriteString(t)
				b.WriteByte(' ')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return strings.TrimSpace(collapseWS.ReplaceAllString(b.String(), " "))
}
