package util

import (
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

// SanitizeHTML drops script elements, inline event handlers and javascript:
// URLs. It returns the body markup of the cleaned document.
func SanitizeHTML(html string) (string, error) {
	if strings.TrimSpace(html) == "" {
		return "", nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	doc.Find("script").Remove()
	doc.Find("*").Each(func(_ int, sel *goquery.Selection) {
		if len(sel.Nodes) == 0 {
			return
		}
		var drop []string
		for _, attr := range sel.Nodes[0].Attr {
			key := strings.ToLower(attr.Key)
			value := strings.ToLower(strings.TrimSpace(attr.Val))
			if strings.HasPrefix(key, "on") || strings.HasPrefix(value, "javascript:") {
				drop = append(drop, attr.Key)
			}
		}
		for _, key := range drop {
			sel.RemoveAttr(key)
		}
	})
	return doc.Find("body").Html()
}

// HTMLToText sanitizes html and renders it as Markdown, which reads well in a
// terminal.
func HTMLToText(html string) (string, error) {
	clean, err := SanitizeHTML(html)
	if err != nil {
		return "", err
	}
	converter := md.NewConverter("", true, nil)
	text, err := converter.ConvertString(clean)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}
