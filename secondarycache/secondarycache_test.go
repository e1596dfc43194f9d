package secondarycache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/goliatone/go-entity/cache"
	"github.com/goliatone/go-entity/entity"
	"github.com/goliatone/go-entity/internal/cacheinfra"
	"github.com/goliatone/go-entity/loader"
	"github.com/goliatone/go-entity/pkg/testsupport"
	"github.com/goliatone/go-entity/privacy"
	"github.com/goliatone/go-entity/schema"
	"github.com/goliatone/go-entity/store"
	"github.com/goliatone/go-entity/store/memstore"
)

type byDomain struct {
	Domain string
	Handle string
}

type countingFetch struct {
	mu    sync.Mutex
	mem   *memstore.Store
	cfg   *schema.Config
	calls [][]byDomain
}

func (f *countingFetch) fetch(_ context.Context, params []byDomain) (map[byDomain]entity.Fields, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]byDomain(nil), params...))
	f.mu.Unlock()

	out := map[byDomain]entity.Fields{}
	for _, row := range f.mem.Rows("users") {
		email, _ := row["email"].(string)
		for _, p := range params {
			if email == p.Handle+"@"+p.Domain {
				out[p] = f.cfg.FromRow(row)
			}
		}
	}
	return out, nil
}

func (f *countingFetch) fetched() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += len(c)
	}
	return n
}

func setup(t *testing.T) (*Loader[byDomain], *countingFetch, cache.Store[entity.Fields]) {
	t.Helper()

	cfg := &schema.Config{
		Kind:   "user",
		Table:  "users",
		Fields: []schema.Field{{Name: "id"}, {Name: "email"}},
		Policy: privacy.Policy{Read: []privacy.Rule{privacy.AllowIfFieldEqualsViewer("id")}},
	}
	reg := schema.NewRegistry()
	if err := reg.Register(cfg); err != nil {
		t.Fatalf("register: %v", err)
	}

	mem := memstore.New()
	mem.Seed("users",
		store.Row{"id": "u1", "email": "ann@example.com"},
		store.Row{"id": "u2", "email": "bob@example.com"},
	)

	tier, err := cacheinfra.NewSturdycStore[entity.Fields](cacheinfra.DefaultConfig())
	if err != nil {
		t.Fatalf("tier: %v", err)
	}

	f := &countingFetch{mem: mem, cfg: cfg}
	l := loader.New(reg, mem, mem)
	return New(l, "user", "by_domain_handle", []cache.Store[entity.Fields]{tier}, f.fetch), f, tier
}

func TestLoader_ReadsThroughOnce(t *testing.T) {
	sc, f, _ := setup(t)
	ctx := context.Background()
	vc := testsupport.Viewer("u1")
	ann := byDomain{Domain: "example.com", Handle: "ann"}
	nobody := byDomain{Domain: "example.com", Handle: "nobody"}

	for i := 0; i < 3; i++ {
		results, err := sc.LoadManyRaw(ctx, vc, []byDomain{ann, nobody, ann})
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if len(results) != 2 {
			t.Fatalf("expected one result per distinct param, got %d", len(results))
		}
		if !results[ann].OK() || results[ann].Entity.ID() != "u1" {
			t.Errorf("unexpected ann result %+v", results[ann])
		}
		if !entity.IsNotFound(results[nobody].Err) {
			t.Errorf("expected nobody to be not found, got %v", results[nobody].Err)
		}
	}

	if n := f.fetched(); n != 2 {
		t.Errorf("expected each param to be fetched once, got %d", n)
	}
}

func TestLoader_AuthorizesPerViewer(t *testing.T) {
	sc, _, _ := setup(t)
	ctx := context.Background()
	bob := byDomain{Domain: "example.com", Handle: "bob"}

	if ent, err := sc.LoadNullable(ctx, testsupport.Viewer("u2"), bob); err != nil || ent == nil || ent.ID() != "u2" {
		t.Fatalf("expected bob to see himself, got %v %v", ent, err)
	}

	_, err := sc.LoadNullable(ctx, testsupport.Viewer("u1"), bob)
	var denied *entity.NotAuthorizedError
	if !errors.As(err, &denied) || denied.Action != entity.ActionRead {
		t.Errorf("expected cached row to be read authorized, got %v", err)
	}

	if ent, err := sc.LoadNullable(ctx, testsupport.Viewer("u1"), byDomain{Domain: "x", Handle: "y"}); ent != nil || err != nil {
		t.Errorf("expected nil for a missing row, got %v %v", ent, err)
	}
}

func TestLoader_Invalidate(t *testing.T) {
	sc, f, tier := setup(t)
	ctx := context.Background()
	vc := testsupport.Viewer("u1")
	ann := byDomain{Domain: "example.com", Handle: "ann"}

	if _, err := sc.LoadNullable(ctx, vc, ann); err != nil {
		t.Fatalf("load: %v", err)
	}
	if size := tier.(*cacheinfra.SturdycStore[entity.Fields]).Size(); size != 1 {
		t.Fatalf("expected one cached entry, got %d", size)
	}

	if err := sc.Invalidate(ctx, ann, ann); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, err := sc.LoadNullable(ctx, vc, ann); err != nil {
		t.Fatalf("load: %v", err)
	}
	if n := f.fetched(); n != 2 {
		t.Errorf("expected a refetch after invalidation, got %d fetches", n)
	}
}

func TestLoader_FetchErrorPropagates(t *testing.T) {
	reg := schema.NewRegistry()
	if err := reg.Register(&schema.Config{Kind: "user", Fields: []schema.Field{{Name: "id"}}}); err != nil {
		t.Fatalf("register: %v", err)
	}
	mem := memstore.New()
	boom := errors.New("search index unavailable")

	sc := New[string](loader.New(reg, mem, mem), "user", "search", nil,
		func(context.Context, []string) (map[string]entity.Fields, error) { return nil, boom },
	)
	if _, err := sc.LoadManyRaw(context.Background(), testsupport.Viewer("u1"), []string{"q"}); !errors.Is(err, boom) {
		t.Errorf("expected fetch error, got %v", err)
	}
}

func TestKeysAreNamespaced(t *testing.T) {
	keys := cache.NewDefaultKeySerializer()
	key := keys.SerializeKey(Namespace, "user", "by_domain_handle", byDomain{Domain: "d", Handle: "h"})
	if !strings.HasPrefix(key, Namespace) {
		t.Errorf("expected key to start with %s, got %s", Namespace, key)
	}
}
