package migrations

import (
	"context"
	"errors"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"

	"github.com/xraph/drafter"
)

type fakeConn struct {
	done    []string
	queries []string
	failOn  string
}

func (c *fakeConn) Exec(_ context.Context, query string) error {
	if c.failOn != "" && strings.Contains(query, c.failOn) {
		return errors.New("syntax error")
	}
	c.queries = append(c.queries, query)
	return nil
}

func (c *fakeConn) Strings(context.Context, string) ([]string, error) {
	return c.done, nil
}

func TestLoad_Embedded(t *testing.T) {
	all, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(all) == 0 || all[0].Name != "001_create_checkpoints.sql" {
		t.Fatalf("migrations = %+v", all)
	}
	if !strings.Contains(all[0].SQL, "drafter_checkpoints") {
		t.Error("first migration does not create the checkpoints table")
	}
}

func TestLoad_SortsAndValidates(t *testing.T) {
	all, err := load(fstest.MapFS{
		"002_b.sql": {Data: []byte("B")},
		"001_a.sql": {Data: []byte("A")},
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	var names []string
	for _, m := range all {
		names = append(names, m.Name)
	}
	if diff := cmp.Diff([]string{"001_a.sql", "002_b.sql"}, names); diff != "" {
		t.Errorf("order (-want +got):\n%s", diff)
	}

	if _, err := load(fstest.MapFS{"001_x'; DROP.sql": {Data: []byte("X")}}); err == nil {
		t.Error("expected an invalid name to be rejected")
	}
}

func TestApply_SkipsApplied(t *testing.T) {
	conn := &fakeConn{done: []string{"001_a.sql"}}
	all := []Migration{{Name: "001_a.sql", SQL: "CREATE A"}, {Name: "002_b.sql", SQL: "CREATE B"}}

	applied, err := apply(context.Background(), conn, all)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if diff := cmp.Diff([]string{"002_b.sql"}, applied); diff != "" {
		t.Errorf("applied (-want +got):\n%s", diff)
	}
	if !strings.Contains(conn.queries[0], "pg_advisory_xact_lock") {
		t.Errorf("first statement = %q, want the lock", conn.queries[0])
	}
	for _, q := range conn.queries {
		if q == "CREATE A" {
			t.Error("applied migration ran again")
		}
	}
	if last := conn.queries[len(conn.queries)-1]; !strings.Contains(last, "'002_b.sql'") {
		t.Errorf("last statement = %q, want the record insert", last)
	}
}

func TestApply_Failure(t *testing.T) {
	conn := &fakeConn{failOn: "CREATE B"}
	all := []Migration{{Name: "001_a.sql", SQL: "CREATE A"}, {Name: "002_b.sql", SQL: "CREATE B"}}

	applied, err := apply(context.Background(), conn, all)
	if !errors.Is(err, drafter.ErrMigrationFailed) {
		t.Fatalf("expected ErrMigrationFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "002_b.sql") {
		t.Errorf("error does not name the file: %v", err)
	}
	if diff := cmp.Diff([]string{"001_a.sql"}, applied); diff != "" {
		t.Errorf("applied (-want +got):\n%s", diff)
	}
}
