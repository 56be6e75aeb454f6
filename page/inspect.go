package page

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Targets is what a parsed redirect page points at.
type Targets struct {
	// Script is the string assigned to window.location.href, unescaped.
	Script string
	// Refresh is the url= part of the meta refresh content.
	Refresh string
	// Robots is the content of the robots meta tag.
	Robots string
}

var (
	scriptTarget  = regexp.MustCompile(`window\.location\.href\s*=\s*"((?:[^"\\]|\\.)*)"`)
	refreshTarget = regexp.MustCompile(`(?i)^\s*\d+\s*;\s*url\s*=\s*(.*?)\s*$`)
)

// Inspect parses content as HTML and extracts the redirect targets.
// Scripting is disabled while parsing so that <noscript> children are
// parsed as elements, the way a script-less client sees them.
func Inspect(content []byte) (Targets, error) {
	doc, err := html.ParseWithOptions(bytes.NewReader(content), html.ParseOptionEnableScripting(false))
	if err != nil {
		return Targets{}, fmt.Errorf("page: parse: %w", err)
	}

	var t Targets
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script:
				if t.Script == "" {
					if m := scriptTarget.FindStringSubmatch(textOf(n)); m != nil {
						t.Script = jsUnescaper.Replace(m[1])
					}
				}
			case atom.Meta:
				switch {
				case strings.EqualFold(attr(n, "name"), "robots"):
					t.Robots = attr(n, "content")
				case strings.EqualFold(attr(n, "http-equiv"), "refresh") && t.Refresh == "":
					if m := refreshTarget.FindStringSubmatch(attr(n, "content")); m != nil {
						t.Refresh = strings.Trim(m[1], `'"`)
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return t, nil
}

// Verify checks that a page redirects to url through both mechanisms and
// carries the robots meta. It returns a description of the first mismatch,
// or "" when the page is consistent.
func Verify(content []byte, url string) string {
	t, err := Inspect(content)
	if err != nil {
		return err.Error()
	}
	switch {
	case t.Script != url:
		return fmt.Sprintf("script target %q does not match", t.Script)
	case t.Refresh != url:
		return fmt.Sprintf("meta refresh target %q does not match", t.Refresh)
	case !strings.Contains(strings.ToLower(t.Robots), "noindex"):
		return "robots meta missing noindex"
	}
	return ""
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func textOf(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	}
	return sb.String()
}
