package query

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/starford/pagenotes/internal/apperr"
	"github.com/starford/pagenotes/internal/models"
	"github.com/starford/pagenotes/internal/notestore"
	"github.com/starford/pagenotes/internal/storage"
	"github.com/starford/pagenotes/internal/testutil"
	"github.com/starford/pagenotes/internal/urlnorm"
)

type fixture struct {
	kv     *storage.Memory
	store  *notestore.Store
	clock  *testutil.Clock
	engine *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	kv := storage.NewMemory()
	clock := testutil.NewClock(0)
	store := notestore.New(kv, urlnorm.Default(),
		notestore.WithClock(clock.Now),
		notestore.WithLogger(testutil.Logger()))
	return &fixture{
		kv:     kv,
		store:  store,
		clock:  clock,
		engine: NewEngine(kv, store, store.Prefix(), testutil.Logger()),
	}
}

func (f *fixture) save(t *testing.T, at int64, url, id, content string) {
	t.Helper()
	f.clock.Set(at)
	if _, err := f.store.Save(context.Background(), url, id, content); err != nil {
		t.Fatalf("Save: %v", err)
	}
}

func urls(cs []models.CollectionSummary) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.URL
	}
	return out
}

func ids(ns []models.AnnotatedNote) []string {
	out := make([]string, len(ns))
	for i, n := range ns {
		out[i] = n.ID
	}
	return out
}

func TestAllCollections_SortedByUpdatedDesc(t *testing.T) {
	f := newFixture(t)
	f.save(t, 100, "https://a.example/", "a", "A")
	f.save(t, 300, "https://b.example/", "b", "B")
	f.save(t, 200, "https://c.example/", "c", "C")

	got := f.engine.AllCollections(context.Background())
	var updated []int64
	for _, c := range got {
		updated = append(updated, c.Updated)
	}
	if !slices.Equal(updated, []int64{300, 200, 100}) {
		t.Errorf("updated order = %v, want [300 200 100]", updated)
	}
	if got[0].Domain != "b.example" {
		t.Errorf("domain = %q", got[0].Domain)
	}
}

func TestAllCollections_TiesKeepKeyOrder(t *testing.T) {
	f := newFixture(t)
	f.save(t, 100, "https://z.example/", "z", "Z")
	f.save(t, 100, "https://m.example/", "m", "M")
	f.save(t, 100, "https://a.example/", "a", "A")

	got := urls(f.engine.AllCollections(context.Background()))
	want := []string{"https://a.example/", "https://m.example/", "https://z.example/"}
	if !slices.Equal(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestAllCollections_SkipsCorruptEmptyAndForeignKeys(t *testing.T) {
	f := newFixture(t)
	f.save(t, 100, "https://good.example/", "g", "G")
	_ = f.kv.Set("notes_https://corrupt.example/", "{oops")
	_ = f.kv.Set("notes_https://empty.example/", `{"url":"https://empty.example/","updated":5,"notes":[]}`)
	_ = f.kv.Set("settings_theme", `"dark"`)

	got := urls(f.engine.AllCollections(context.Background()))
	if !slices.Equal(got, []string{"https://good.example/"}) {
		t.Errorf("collections = %v", got)
	}
}

func TestAllCollections_ListFailure(t *testing.T) {
	kv := &testutil.FailingKV{KeyValueStore: storage.NewMemory(), FailList: true}
	e := NewEngine(kv, nil, notestore.DefaultKeyPrefix, testutil.Logger())
	got := e.AllCollections(context.Background())
	if got == nil || len(got) != 0 {
		t.Errorf("got %#v, want empty", got)
	}
}

func TestCollectionsByDomain(t *testing.T) {
	f := newFixture(t)
	f.save(t, 100, "https://docs.example.com/a", "1", "x")
	f.save(t, 200, "https://docs.example.com/b", "2", "y")
	f.save(t, 300, "https://other.example.com/", "3", "z")
	f.save(t, 400, "https://docs.example.com:8080/c", "4", "w")

	got := urls(f.engine.CollectionsByDomain(context.Background(), "docs.example.com"))
	want := []string{"https://docs.example.com:8080/c", "https://docs.example.com/b", "https://docs.example.com/a"}
	if !slices.Equal(got, want) {
		t.Errorf("by domain = %v, want %v", got, want)
	}
	if n := len(f.engine.CollectionsByDomain(context.Background(), "missing.example")); n != 0 {
		t.Errorf("unexpected matches: %d", n)
	}
}

func TestURLView_NaturalOrder(t *testing.T) {
	f := newFixture(t)
	f.save(t, 300, "https://a.example/", "first", "1")
	f.save(t, 100, "https://a.example/", "second", "2")
	f.save(t, 200, "https://a.example/", "third", "3")

	got := f.engine.URLView(context.Background(), "https://a.example/#frag")
	if !slices.Equal(ids(got), []string{"first", "second", "third"}) {
		t.Errorf("url view = %v", ids(got))
	}
	if got[0].SourceURL != "" || got[0].Domain != "" {
		t.Error("url view should not annotate notes")
	}
}

func TestDomainView_FlattenedAndSorted(t *testing.T) {
	f := newFixture(t)
	f.save(t, 100, "https://d.example/a", "a1", "x")
	f.save(t, 400, "https://d.example/a", "a2", "x")
	f.save(t, 300, "https://d.example/b", "b1", "x")
	f.save(t, 500, "https://elsewhere.example/", "e1", "x")

	got := f.engine.DomainView(context.Background(), "d.example")
	if !slices.Equal(ids(got), []string{"a2", "b1", "a1"}) {
		t.Errorf("domain view = %v", ids(got))
	}
	if got[1].SourceURL != "https://d.example/b" {
		t.Errorf("source url = %q", got[1].SourceURL)
	}
	if got[0].Domain != "" {
		t.Error("domain view should not set domain")
	}
}

func TestGlobalView_TieBreakByID(t *testing.T) {
	f := newFixture(t)
	f.save(t, 100, "https://x.example/", "b", "x")
	f.save(t, 100, "https://y.example/", "a", "y")
	f.save(t, 200, "https://y.example/", "c", "y")

	got := f.engine.GlobalView(context.Background())
	if !slices.Equal(ids(got), []string{"c", "a", "b"}) {
		t.Errorf("global view = %v", ids(got))
	}
	for _, n := range got {
		if n.Domain == "" || n.SourceURL == "" {
			t.Errorf("note %s not annotated: %+v", n.ID, n)
		}
	}
}

func TestView_Dispatch(t *testing.T) {
	f := newFixture(t)
	f.save(t, 100, "https://d.example/a", "1", "x")
	f.save(t, 200, "https://d.example/b", "2", "x")
	f.save(t, 300, "https://e.example/", "3", "x")
	ctx := context.Background()

	cases := []struct {
		mode string
		want []string
	}{
		{ModeURL, []string{"1"}},
		{ModeDomain, []string{"2", "1"}},
		{ModeAll, []string{"3", "2", "1"}},
	}
	for _, tc := range cases {
		got, err := f.engine.View(ctx, tc.mode, "https://d.example/a")
		if err != nil {
			t.Fatalf("View(%s): %v", tc.mode, err)
		}
		if !slices.Equal(ids(got), tc.want) {
			t.Errorf("View(%s) = %v, want %v", tc.mode, ids(got), tc.want)
		}
	}

	if _, err := f.engine.View(ctx, "weekly", ""); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("unknown mode err = %v", err)
	}
}

func TestDomains(t *testing.T) {
	f := newFixture(t)
	f.save(t, 100, "https://d.example/a", "1", "x")
	f.save(t, 150, "https://d.example/a", "2", "x")
	f.save(t, 200, "https://d.example/b", "3", "x")
	f.save(t, 300, "https://e.example/", "4", "x")

	got := f.engine.Domains(context.Background())
	want := []models.DomainSummary{
		{Domain: "e.example", Pages: 1, Notes: 1, Updated: 300},
		{Domain: "d.example", Pages: 2, Notes: 3, Updated: 200},
	}
	if !slices.Equal(got, want) {
		t.Errorf("Domains = %+v, want %+v", got, want)
	}
}
