// Package extract turns fetched HTML pages into link and route metadata.
package extract

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Document is the subset of an HTML page the extractors look at.
type Document struct {
	Title string
	// Meta maps lowercased property/name attributes to the first non-empty
	// content seen for them.
	Meta map[string]string
	// JSONLD holds every decodable application/ld+json block in page order.
	JSONLD []any
	// Text is the visible body text with scripts and styles removed.
	Text string
}

// Parse builds a Document from raw HTML. Malformed markup is tolerated.
func Parse(body []byte) *Document {
	doc := &Document{Meta: map[string]string{}}
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return doc
	}

	var text strings.Builder
	var walk func(n *html.Node, inBody bool)
	walk = func(n *html.Node, inBody bool) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Meta:
				doc.addMeta(n)
			case atom.Title:
				if doc.Title == "" {
					doc.Title = strings.TrimSpace(nodeText(n))
				}
				return
			case atom.Script:
				if isJSONLD(n) {
					var v any
					if err := json.Unmarshal([]byte(strings.TrimSpace(nodeText(n))), &v); err == nil {
						doc.JSONLD = append(doc.JSONLD, v)
					}
				}
				return
			case atom.Style, atom.Noscript, atom.Template:
				return
			case atom.Body:
				inBody = true
			}
		}
		if n.Type == html.TextNode && inBody {
			if s := strings.TrimSpace(n.Data); s != "" {
				if text.Len() > 0 {
					text.WriteByte(' ')
				}
				text.WriteString(s)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, inBody)
		}
	}
	walk(root, false)
	doc.Text = text.String()
	return doc
}

// MetaValue returns the first non-empty meta content among keys.
func (d *Document) MetaValue(keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(d.Meta[key]); v != "" {
			return v
		}
	}
	return ""
}

func (d *Document) addMeta(n *html.Node) {
	var key, content string
	for _, a := range n.Attr {
		switch strings.ToLower(a.Key) {
		case "property", "name":
			if key == "" {
				key = strings.ToLower(strings.TrimSpace(a.Val))
			}
		case "content":
			content = a.Val
		}
	}
	if key == "" || strings.TrimSpace(content) == "" {
		return
	}
	if _, ok := d.Meta[key]; !ok {
		d.Meta[key] = content
	}
}

func isJSONLD(n *html.Node) bool {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, "type") {
			return strings.EqualFold(strings.TrimSpace(a.Val), "application/ld+json")
		}
	}
	return false
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}

// ldObjects flattens JSON-LD blocks into candidate objects. Top-level arrays
// and @graph members are expanded.
func ldObjects(blocks []any) []map[string]any {
	var out []map[string]any
	var add func(v any)
	add = func(v any) {
		switch t := v.(type) {
		case []any:
			for _, item := range t {
				add(item)
			}
		case map[string]any:
			out = append(out, t)
			if graph, ok := t["@graph"]; ok {
				add(graph)
			}
		}
	}
	for _, b := range blocks {
		add(b)
	}
	return out
}

// ldTypes returns the @type values of a JSON-LD object.
func ldTypes(obj map[string]any) []string {
	switch t := obj["@type"].(type) {
	case string:
		return []string{t}
	case []any:
		var out []string
		for _, v := range t {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// ldString reads a scalar, or the value/name/url member of a nested object.
func ldString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case map[string]any:
		for _, key := range []string{"value", "name", "url", "@id"} {
			if s := ldString(t[key]); s != "" {
				return s
			}
		}
	case []any:
		for _, item := range t {
			if s := ldString(item); s != "" {
				return s
			}
		}
	}
	return ""
}
