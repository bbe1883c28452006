package parser

import (
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// htmlToText drops script and style elements and returns the remaining text
// with whitespace collapsed.
func htmlToText(s string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.Join(strings.Fields(s), " ")
	}
	doc.Find("script, style, noscript").Remove()

	var sb strings.Builder
	for _, n := range doc.Nodes {
		collectText(n, &sb)
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

func collectText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
	}
	if n.Type == html.ElementNode && breaksText(n.DataAtom) {
		sb.WriteByte(' ')
	}
}

func breaksText(a atom.Atom) bool {
	switch a {
	case atom.Br, atom.P, atom.Div, atom.Li, atom.Tr, atom.Td, atom.Th,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Blockquote, atom.Pre, atom.Section, atom.Article, atom.Header, atom.Footer:
		return true
	}
	return false
}

// imageURL tries, in order: enclosures, media thumbnails, the item image and
// finally the first inline <img> of the content fields.
func imageURL(item *gofeed.Item, htmlFields ...string) *string {
	for _, enc := range item.Enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}
		if strings.HasPrefix(enc.Type, "image/") || (enc.Type == "" && looksLikeImage(enc.URL)) {
			return ptr(enc.URL)
		}
	}

	if media, ok := item.Extensions["media"]; ok {
		for _, thumb := range media["thumbnail"] {
			if u := thumb.Attrs["url"]; u != "" {
				return ptr(u)
			}
		}
		for _, group := range media["group"] {
			for _, thumb := range group.Children["thumbnail"] {
				if u := thumb.Attrs["url"]; u != "" {
					return ptr(u)
				}
			}
		}
		for _, content := range media["content"] {
			if u := content.Attrs["url"]; u != "" && (content.Attrs["medium"] == "image" || strings.HasPrefix(content.Attrs["type"], "image/")) {
				return ptr(u)
			}
		}
	}

	if item.Image != nil && item.Image.URL != "" {
		return ptr(item.Image.URL)
	}

	for _, field := range htmlFields {
		if !strings.Contains(field, "<img") {
			continue
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(field))
		if err != nil {
			continue
		}
		if src, ok := doc.Find("img[src]").First().Attr("src"); ok && strings.TrimSpace(src) != "" {
			return ptr(strings.TrimSpace(src))
		}
	}

	return nil
}

func looksLikeImage(u string) bool {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	switch strings.ToLower(path.Ext(u)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".avif", ".svg":
		return true
	}
	return false
}

func ptr(s string) *string {
	return &s
}
