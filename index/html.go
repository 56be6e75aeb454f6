package index

import (
	"bytes"
	"html/template"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var listTmpl = template.Must(template.New("list").Parse(
	`<ul>
{{- range .}}
<li><a href="{{.PURL}}">{{.File}}</a> -&gt; <a href="{{.URL}}">{{.URL}}</a></li>
{{- end}}
</ul>
`))

// policy allows the usual user-content markup. Links get rel="nofollow"
// and anything with a non-web scheme is dropped.
var policy = bluemonday.UGCPolicy().RequireNoFollowOnLinks(true)

type htmlItem struct {
	File string
	PURL string
	URL  string
}

// RenderHTML renders pairs as a standalone HTML page. The list is passed
// through the sanitizer before it is wrapped in the fixed page shell.
func RenderHTML(pairs []Pair, baseURL, lang, title string) ([]byte, error) {
	base := strings.TrimRight(baseURL, "/")
	items := make([]htmlItem, len(pairs))
	for i, p := range pairs {
		items[i] = htmlItem{File: p.File, PURL: base + "/" + p.File, URL: p.URL}
	}

	var list bytes.Buffer
	if err := listTmpl.Execute(&list, items); err != nil {
		return nil, err
	}
	body := policy.SanitizeBytes(list.Bytes())

	var out bytes.Buffer
	out.WriteString("<!DOCTYPE html>\n<html lang=\"")
	template.HTMLEscape(&out, []byte(lang))
	out.WriteString("\">\n<head>\n<meta charset=\"utf-8\">\n")
	out.WriteString("<meta name=\"robots\" content=\"noindex, nofollow\">\n<title>")
	template.HTMLEscape(&out, []byte(title))
	out.WriteString("</title>\n</head>\n<body>\n<h1>")
	template.HTMLEscape(&out, []byte(title))
	out.WriteString("</h1>\n")
	out.Write(body)
	out.WriteString("</body>\n</html>\n")
	return out.Bytes(), nil
}
