package output

import (
	"embed"
	"fmt"
	"io"
	"net"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/miekg/dns"

	"github.com/curtisra-gif/simple-gslb/internal/model"
)

const (
	ConfigTemplate = "Corefile.tmpl"
	ZoneTemplate   = "zonefile.tmpl"
)

//go:embed templates/*.tmpl
var defaultTemplates embed.FS

// ConfigData is bound to the nameserver configuration template.
type ConfigData struct {
	GeoIPEnabled bool
	GeoIPDBPath  string
	DomainMeta   model.DomainMeta
	ZoneDir      string
}

// ZoneFile is the path of the zone file for a domain and view.
func (d ConfigData) ZoneFile(domain, view string) string {
	return filepath.Join(d.ZoneDir, ZoneFileName(domain, view))
}

// ZoneData is bound to the zone file template.
type ZoneData struct {
	Domain      string
	Nameservers []string
	Serial      int64
	Records     model.ZoneView
}

// Renderer turns computed data into output text.
type Renderer interface {
	RenderConfig(w io.Writer, data ConfigData) error
	RenderZone(w io.Writer, data ZoneData) error
}

// TemplateRenderer renders with text/template.
type TemplateRenderer struct {
	tmpl *template.Template
}

var funcs = template.FuncMap{
	"fqdn":   dns.Fqdn,
	"lower":  strings.ToLower,
	"upper":  strings.ToUpper,
	"rrtype": rrType,
}

// NewTemplateRenderer loads Corefile.tmpl and zonefile.tmpl from dir, or the
// built-in templates when dir is empty.
func NewTemplateRenderer(dir string) (*TemplateRenderer, error) {
	t := template.New("").Funcs(funcs).Option("missingkey=error")

	var err error
	if dir == "" {
		t, err = t.ParseFS(defaultTemplates, "templates/*.tmpl")
	} else {
		t, err = t.ParseFiles(filepath.Join(dir, ConfigTemplate), filepath.Join(dir, ZoneTemplate))
	}
	if err != nil {
		return nil, fmt.Errorf("loading templates: %w", err)
	}

	for _, name := range []string{ConfigTemplate, ZoneTemplate} {
		if t.Lookup(name) == nil {
			return nil, fmt.Errorf("template %s not defined", name)
		}
	}
	return &TemplateRenderer{tmpl: t}, nil
}

func (r *TemplateRenderer) RenderConfig(w io.Writer, data ConfigData) error {
	return r.tmpl.ExecuteTemplate(w, ConfigTemplate, data)
}

func (r *TemplateRenderer) RenderZone(w io.Writer, data ZoneData) error {
	return r.tmpl.ExecuteTemplate(w, ZoneTemplate, data)
}

func rrType(address string) string {
	ip := net.ParseIP(address)
	switch {
	case ip == nil:
		return "CNAME"
	case ip.To4() != nil:
		return "A"
	default:
		return "AAAA"
	}
}
