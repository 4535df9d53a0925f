package enrich

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/net/html/charset"

	"github.com/starford/hibi/internal/models"
)

// parsePreview extracts the document title, meta description, and og:image
// from an HTML body. The body is decoded to UTF-8 using the Content-Type
// header and any <meta charset> declaration.
func parsePreview(body []byte, contentType string) (models.URLMetadata, error) {
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return models.URLMetadata{}, fmt.Errorf("decode charset: %w", err)
	}
	doc, err := html.Parse(r)
	if err != nil {
		return models.URLMetadata{}, fmt.Errorf("parse html: %w", err)
	}

	var (
		title, desc, image string
		haveTitle          bool
		haveDesc           bool
	)
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Title:
				if !haveTitle {
					haveTitle = true
					title = textOf(n)
				}
			case atom.Meta:
				name := strings.ToLower(attr(n, "name"))
				prop := strings.ToLower(attr(n, "property"))
				switch {
				case name == "description" && !haveDesc:
					haveDesc = true
					desc = attr(n, "content")
				case prop == "og:image" && image == "":
					image = attr(n, "content")
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	title = strings.TrimSpace(title)
	if title == "" {
		title = NoTitle
	}
	desc = strings.TrimSpace(desc)
	if desc == "" {
		desc = NoDescription
	}
	return models.URLMetadata{
		Title:       title,
		Description: desc,
		ImageURL:    strings.TrimSpace(image),
	}, nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textOf(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}
