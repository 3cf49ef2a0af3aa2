package graph_test

import (
	"testing"

	"github.com/xraph/drafter/graph"
)

func versioned(t *testing.T, name string, version int) *graph.Graph {
	t.Helper()
	g, err := graph.New(graph.Definition{Name: name, Version: version, Schema: testSchema, Nodes: nodes("a")})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g
}

func TestRegistry_LatestVersion(t *testing.T) {
	r := graph.NewRegistry()
	r.Register(versioned(t, "doc", 1))
	r.Register(versioned(t, "doc", 3))
	r.Register(versioned(t, "doc", 2))

	g, ok := r.Get("doc")
	if !ok || g.Version() != 3 {
		t.Fatalf("Get = %v, %v; want version 3", g, ok)
	}
	g, ok = r.GetVersion("doc", 2)
	if !ok || g.Version() != 2 {
		t.Fatalf("GetVersion(2) = %v, %v", g, ok)
	}
	if _, ok := r.GetVersion("doc", 9); ok {
		t.Error("unexpected version 9")
	}
	if _, ok := r.Get("missing"); ok {
		t.Error("unexpected graph")
	}
}

func TestRegistry_ReplaceSameVersion(t *testing.T) {
	r := graph.NewRegistry()
	first := versioned(t, "doc", 1)
	second := versioned(t, "doc", 1)
	r.Register(first)
	r.Register(second)

	g, _ := r.Get("doc")
	if g != second {
		t.Error("same version was not replaced")
	}
}

func TestRegistry_List(t *testing.T) {
	r := graph.NewRegistry()
	r.Register(versioned(t, "zeta", 1))
	r.Register(versioned(t, "alpha", 1))
	r.Register(versioned(t, "alpha", 2))

	list := r.List()
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	if list[0].Name() != "alpha" || list[0].Version() != 2 || list[1].Name() != "zeta" {
		t.Errorf("unexpected order: %s@%d, %s", list[0].Name(), list[0].Version(), list[1].Name())
	}
}
