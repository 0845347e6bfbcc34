// Package source supplies the domain definitions the controller reconciles.
package source

import (
	"context"

	"github.com/curtisra-gif/simple-gslb/internal/model"
)

// Source lists every domain to reconcile. Implementations are read-only and
// are called once per cycle.
type Source interface {
	List(ctx context.Context) ([]model.DomainConfig, error)
}

// Func adapts a function to a Source.
type Func func(ctx context.Context) ([]model.DomainConfig, error)

func (f Func) List(ctx context.Context) ([]model.DomainConfig, error) {
	return f(ctx)
}

// Entry is one GSLB configuration object as stored by a backend.
type Entry struct {
	Domain      string         `json:"domain" yaml:"domain"`
	Nameservers []string       `json:"nameservers" yaml:"nameservers"`
	Records     []model.Record `json:"records,omitempty" yaml:"records,omitempty"`
}

// Merge folds entries into domain configs. Entries without a domain or
// nameservers are ignored; entries for the same domain have their records
// concatenated and keep the first entry's nameservers. Domains are returned
// in the order they first appear.
func Merge(entries []Entry) []model.DomainConfig {
	var out []model.DomainConfig
	index := map[string]int{}

	for _, e := range entries {
		if e.Domain == "" || len(e.Nameservers) == 0 {
			continue
		}
		if i, ok := index[e.Domain]; ok {
			out[i].Records = append(out[i].Records, e.Records...)
			continue
		}
		index[e.Domain] = len(out)
		out = append(out, model.DomainConfig{
			Domain:      e.Domain,
			Nameservers: e.Nameservers,
			Records:     append([]model.Record(nil), e.Records...),
		})
	}
	return out
}
