package usage

import (
	"embed"
	"io"
	"sync"
	"text/template"
)

//go:embed templates/*.tmpl
var tmplFS embed.FS

var (
	once sync.Once
	tmpl *template.Template
)

// Version is stamped at build time with -ldflags "-X ...usage.Version=...".
var Version = "0.7.1-go"

func load() {
	base := template.New("base")
	tmpl = template.Must(base.ParseFS(tmplFS, "templates/*.tmpl"))
}

// Render writes the named template (help, version) to w with data enriched
// by Program and Version.
func Render(w io.Writer, name string, data map[string]any) error {
	once.Do(load)
	if data == nil {
		data = map[string]any{}
	}
	if _, ok := data["Program"]; !ok {
		data["Program"] = "gonetcat"
	}
	data["Version"] = Version
	return tmpl.ExecuteTemplate(w, name+".tmpl", data)
}
