package api

import (
	"html/template"
	"net/http"

	"github.com/microcosm-cc/bluemonday"
)

// Hostnames come from arbitrary page URLs; strip any markup before they
// reach the template.
var strict = bluemonday.StrictPolicy()

type domainView struct {
	Name    string
	Blocked int
}

var pageTmpl = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en"><head><meta charset="UTF-8"><meta name="viewport" content="width=device-width,initial-scale=1">
<title>tabfreeze</title>
<style>
body{font-family:system-ui,sans-serif;max-width:640px;margin:2rem auto;padding:0 1rem;color:#222;background:#fafafa}
h1{font-size:1.3rem;border-bottom:2px solid #e0e0e0;padding-bottom:.4rem}
li{padding:.3rem 0}
.count{color:#666;font-size:.85rem}
.empty{color:#999;font-style:italic}
</style></head><body>
<h1>Frozen domains ({{len .Domains}})</h1>
{{- if not .Domains}}
<p class="empty">There are no blocked domains</p>
{{- else}}
<ul>
{{- range .Domains}}
<li>{{.Name}}{{if .Blocked}} <span class="count">{{.Blocked}} tab(s) blocked</span>{{end}}</li>
{{- end}}
</ul>
{{- end}}
</body></html>`))

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	blocked := s.opts.Freezer.Blocked()
	names := s.opts.Freezer.Domains(r.Context())

	views := make([]domainView, 0, len(names))
	for _, n := range names {
		views = append(views, domainView{Name: strict.Sanitize(n), Blocked: blocked[n]})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTmpl.Execute(w, struct{ Domains []domainView }{views}); err != nil {
		requestLogger(r.Context()).Warn("api: render page", "error", err)
	}
}
