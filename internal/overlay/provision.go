package overlay

import (
	"errors"
	"log/slog"

	"github.com/joeblew999/plat-broadband/internal/catalog"
	"github.com/joeblew999/plat-broadband/internal/mapbackend"
	"github.com/joeblew999/plat-broadband/internal/metrics"
)

// Provisioner adds the catalog's sources to a backend, each at most once.
type Provisioner struct {
	backend mapbackend.Backend
	sources []catalog.SourceDescriptor
	log     *slog.Logger
}

// NewProvisioner creates a provisioner for the given sources.
func NewProvisioner(backend mapbackend.Backend, sources []catalog.SourceDescriptor, log *slog.Logger) *Provisioner {
	if log == nil {
		log = slog.Default()
	}
	return &Provisioner{backend: backend, sources: sources, log: log}
}

// Ready reports whether every source exists on the backend.
func (p *Provisioner) Ready() bool {
	for _, s := range p.sources {
		if _, ok := p.backend.GetSource(s.ID); !ok {
			return false
		}
	}
	return true
}

// EnsureSources adds every source the backend does not already have.
// Existence is checked by id only. It returns how many sources were added and
// the joined backend errors, if any.
func (p *Provisioner) EnsureSources() (int, error) {
	added := 0
	var errs []error
	for _, s := range p.sources {
		if _, ok := p.backend.GetSource(s.ID); ok {
			continue
		}
		err := p.backend.AddSource(s.ID, mapbackend.Source{URL: s.URL, Type: string(s.Type)})
		if err != nil {
			metrics.BackendErrorsTotal.WithLabelValues("add_source").Inc()
			p.log.Error("add source failed", "source", s.ID, "error", err)
			errs = append(errs, err)
			continue
		}
		metrics.SourcesProvisionedTotal.Inc()
		added++
	}
	if added > 0 {
		p.log.Debug("sources provisioned", "count", added)
	}
	return added, errors.Join(errs...)
}
