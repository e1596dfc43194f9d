package schema

import (
	"fmt"
	"sort"

	goerrors "github.com/goliatone/go-errors"
	"github.com/puzpuzpuz/xsync/v3"
)

// InboundEdge is a field of Kind that references another kind.
type InboundEdge struct {
	Kind  string
	Field Field
}

// Association returns the edge's association.
func (e InboundEdge) Association() *Association { return e.Field.Association }

// Registry holds the configuration of every entity kind and the inbound
// edges between them.
type Registry struct {
	configs *xsync.MapOf[string, *Config]
	inbound *xsync.MapOf[string, []InboundEdge]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		configs: xsync.NewMapOf[string, *Config](),
		inbound: xsync.NewMapOf[string, []InboundEdge](),
	}
}

// Register validates and adds configurations. Associations may reference
// kinds registered later; Validate checks the complete graph.
func (r *Registry) Register(configs ...*Config) error {
	for _, cfg := range configs {
		cfg.prepare()
		if err := cfg.Validate(); err != nil {
			return err
		}
		if _, loaded := r.configs.LoadOrStore(cfg.Kind, cfg); loaded {
			return goerrors.New(fmt.Sprintf("kind %q already registered", cfg.Kind), goerrors.CategoryConflict).
				WithTextCode("SCHEMA_DUPLICATE_KIND")
		}

		for _, f := range cfg.Fields {
			if f.Association == nil {
				continue
			}
			edge := InboundEdge{Kind: cfg.Kind, Field: f}
			r.inbound.Compute(f.Association.Kind, func(old []InboundEdge, _ bool) ([]InboundEdge, bool) {
				edges := make([]InboundEdge, 0, len(old)+1)
				edges = append(edges, old...)
				return append(edges, edge), false
			})
		}
	}
	return nil
}

// Lookup returns the configuration of kind.
func (r *Registry) Lookup(kind string) (*Config, bool) {
	return r.configs.Load(kind)
}

// Get returns the configuration of kind or a not found error.
func (r *Registry) Get(kind string) (*Config, error) {
	cfg, ok := r.configs.Load(kind)
	if !ok {
		return nil, goerrors.New(fmt.Sprintf("kind %q is not registered", kind), goerrors.CategoryNotFound).
			WithTextCode("SCHEMA_UNKNOWN_KIND")
	}
	return cfg, nil
}

// InboundEdges returns the fields of other kinds referencing kind, ordered
// by referencing kind and field name.
func (r *Registry) InboundEdges(kind string) []InboundEdge {
	edges, _ := r.inbound.Load(kind)
	out := append([]InboundEdge(nil), edges...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Field.Name < out[j].Field.Name
	})
	return out
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, r.configs.Size())
	r.configs.Range(func(kind string, _ *Config) bool {
		kinds = append(kinds, kind)
		return true
	})
	sort.Strings(kinds)
	return kinds
}

// Validate checks that every association targets a registered kind and a
// declared field.
func (r *Registry) Validate() error {
	for _, kind := range r.Kinds() {
		cfg, _ := r.configs.Load(kind)
		for _, f := range cfg.Fields {
			if f.Association == nil {
				continue
			}
			target, ok := r.configs.Load(f.Association.Kind)
			if !ok {
				return goerrors.New(fmt.Sprintf("%s.%s references unregistered kind %q", kind, f.Name, f.Association.Kind),
					goerrors.CategoryValidation).WithTextCode("SCHEMA_INVALID")
			}
			if ref := r.ReferencedField(f.Association); !target.HasField(ref) {
				return goerrors.New(fmt.Sprintf("%s.%s references undeclared field %s.%s", kind, f.Name, target.Kind, ref),
					goerrors.CategoryValidation).WithTextCode("SCHEMA_INVALID")
			}
		}
	}
	return nil
}

// ReferencedField returns the field of the referenced kind an association
// matches against.
func (r *Registry) ReferencedField(a *Association) string {
	if a.Field != "" {
		return a.Field
	}
	if target, ok := r.configs.Load(a.Kind); ok {
		return target.IDField
	}
	return "id"
}
