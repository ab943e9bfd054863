// Package derive turns the raw group documents of one poll cycle into the
// flat metric map and control descriptors published to the host.
//
// Derivation is a pure function of the raw cache, the filter values and the
// device mode. It never performs I/O, so a filter change can be applied by
// re-deriving from the cache that is already held.
package derive

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/nvxd/internal/nvx"
)

// Source is the read side of a raw cache.
type Source interface {
	Get(g nvx.Group) (nvx.Document, bool)
	Mode() nvx.Mode
	Model() string
}

// Options tune what a derivation emits.
type Options struct {
	IncludeControls bool
}

// Input is everything a derivation depends on.
type Input struct {
	Source  Source
	Filters map[string]string
	Options Options
}

// Result is the derived view plus the filters that had to be clamped to an
// available option. Callers write Corrections back to the filter store.
type Result struct {
	View        View
	Corrections map[string]string
}

type run struct {
	src         Source
	filters     map[string]string
	mode        nvx.Mode
	model       string
	opts        Options
	view        View
	scopes      map[string]nvx.Document
	corrections map[string]string
}

// Derive evaluates the property table against in.
func Derive(in Input) Result {
	r := &run{
		src:         in.Source,
		filters:     in.Filters,
		opts:        in.Options,
		view:        NewView(),
		scopes:      make(map[string]nvx.Document),
		corrections: make(map[string]string),
	}
	if r.filters == nil {
		r.filters = map[string]string{}
	}
	if r.src == nil {
		return Result{View: r.view, Corrections: r.corrections}
	}
	r.mode = r.src.Mode()
	r.model = r.src.Model()

	for i := range table {
		r.apply(&table[i])
	}
	return Result{View: r.view, Corrections: r.corrections}
}

func (r *run) apply(p *property) {
	doc, ok := r.src.Get(p.group)
	if !ok || doc == nil || nvx.IsUnsupported(doc) {
		return
	}
	if !p.mode.Matches(r.mode) {
		return
	}
	if p.requires != nil && !p.requires(doc) {
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			log.Debug().Str("property", p.name).Str("panic", fmt.Sprint(rec)).Msg("Property resolution failed")
			r.view.Metrics[p.name] = None
		}
	}()
	p.strategy.resolve(r, p, doc)
}

func (r *run) metric(name, value string) {
	r.view.Metrics[name] = value
}

func (r *run) control(c Control) {
	if !r.opts.IncludeControls {
		return
	}
	r.view.SetControl(c)
}

func (r *run) correct(key, value string) {
	r.corrections[key] = value
}

// currentModel prefers the model recorded with the cache and falls back to
// the Model metric derived earlier in the run.
func (r *run) currentModel() string {
	if r.model != "" {
		return r.model
	}
	return r.view.Metrics[PropModel]
}
