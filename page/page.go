// Package page renders and inspects static redirect pages.
//
// A redirect page carries its target twice: a script that assigns
// window.location.href for script-enabled clients, and a meta refresh
// inside <noscript> for everyone else. A robots meta keeps the page out of
// search indexes.
package page

import (
	"bytes"
	"regexp"
	"strings"
)

// DefaultLang is the lang attribute of generated pages.
const DefaultLang = "da"

// Builder renders redirect pages. The zero value renders the published
// layout with lang="da" and the URL inserted verbatim.
type Builder struct {
	// Lang is the document language. Empty means DefaultLang.
	Lang string

	// Escape neutralises characters that would break out of the script
	// string literal or the meta attribute. Ordinary URLs render byte for
	// byte the same with or without it.
	Escape bool
}

var (
	jsEscaper = strings.NewReplacer(
		`\`, `\\`,
		`"`, `\"`,
		`<`, `\u003c`,
		"\n", `\n`,
		"\r", `\r`,
		"\u2028", `\u2028`,
		"\u2029", `\u2029`,
	)
	jsUnescaper = strings.NewReplacer(
		`\\`, `\`,
		`\"`, `"`,
		`\u003c`, `<`,
		`\n`, "\n",
		`\r`, "\r",
		`\u2028`, "\u2028",
		`\u2029`, "\u2029",
	)
	attrEscaper = strings.NewReplacer(
		`"`, "&#34;",
		`<`, "&lt;",
		`>`, "&gt;",
	)
)

// Render returns the redirect document for url.
func (b Builder) Render(url string) []byte {
	lang := b.Lang
	if lang == "" {
		lang = DefaultLang
	}
	scriptURL, metaURL := url, url
	if b.Escape {
		scriptURL = jsEscaper.Replace(url)
		metaURL = attrEscaper.Replace(url)
	}

	var buf bytes.Buffer
	buf.Grow(320 + 2*len(url))
	buf.WriteString("<!DOCTYPE html>\n")
	buf.WriteString(`<html lang="` + attrEscaper.Replace(lang) + "\">\n")
	buf.WriteString("    <head>\n")
	buf.WriteString("        <meta charset=\"utf-8\">\n")
	buf.WriteString(`        <script>window.location.href = "` + scriptURL + "\";</script>\n")
	buf.WriteString("        <meta name=\"robots\" content=\"noindex, nofollow\">\n")
	buf.WriteString("    </head>\n")
	buf.WriteString("    <body>\n")
	buf.WriteString("        <noscript>\n")
	buf.WriteString(`            <meta http-equiv="refresh" content="0;url=` + metaURL + "\">\n")
	buf.WriteString("        </noscript>\n")
	buf.WriteString("    </body>\n")
	buf.WriteString("</html>")
	return buf.Bytes()
}

// firstURL matches the first absolute http(s) URL in a document.
var firstURL = regexp.MustCompile(`https?://[^\s"]+`)

// FirstURL returns the first absolute URL appearing in content, or "".
// On a page rendered by Builder this is the script target.
func FirstURL(content []byte) string {
	return string(firstURL.Find(content))
}
