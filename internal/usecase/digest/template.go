package digest

import "html/template"

// digestTemplateSource is the standalone HTML document rendered for each
// day's digest. It autoescapes through html/template, so article titles
// and summaries pulled from third-party feeds can never inject markup.
const digestTemplateSource = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Security Digest — {{.Date}}</title>
<style>
  body { font-family: -apple-system, Helvetica, Arial, sans-serif; max-width: 760px; margin: 2rem auto; color: #1a1a1a; }
  h1 { font-size: 1.5rem; }
  h2 { font-size: 1.1rem; border-bottom: 1px solid #ddd; padding-bottom: .25rem; margin-top: 2rem; }
  .article { margin: 1rem 0; }
  .article a { font-weight: 600; text-decoration: none; color: #0b5fff; }
  .article p { margin: .25rem 0 0; color: #444; }
</style>
</head>
<body>
<h1>Security Digest — {{.Date}}</h1>
{{range .Sections}}
<h2>{{.Name}}</h2>
{{range .Articles}}
<div class="article">
  <a href="{{.URL}}">{{.Title}}</a>
  {{if .Summary}}<p>{{.Summary}}</p>{{end}}
</div>
{{end}}
{{end}}
</body>
</html>
`

var digestTemplate = template.Must(template.New("digest").Parse(digestTemplateSource))

// templateData is the root object passed to digestTemplate.Execute.
type templateData struct {
	Date     string
	Sections []templateSection
}

type templateSection struct {
	Name     string
	Articles []templateArticle
}

type templateArticle struct {
	Title   string
	URL     string
	Summary string
}
