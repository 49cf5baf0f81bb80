package testutil

import (
	"context"
	"database/sql/driver"
	"testing"
)

func TestStubDBUpsertsDeletesAndQueries(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()

	if err := conn.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	upsert := "INSERT INTO lineages(id,payload) VALUES($1,$2) ON CONFLICT(id) DO UPDATE SET payload=EXCLUDED.payload"
	for _, payload := range []string{`{"v":1}`, `{"v":2}`} {
		if _, err := conn.ExecContext(ctx, upsert, []driver.NamedValue{{Value: "lin-1"}, {Value: []byte(payload)}}); err != nil {
			t.Fatalf("ExecContext upsert: %v", err)
		}
	}
	if rows := conn.Tables["lineages"]; len(rows) != 1 || string(rows[0]["payload"].([]byte)) != `{"v":2}` {
		t.Fatalf("expected a single replaced row, got %v", rows)
	}

	rows, err := conn.QueryContext(ctx, "SELECT id, payload FROM lineages", nil)
	if err != nil {
		t.Fatalf("QueryContext: %v", err)
	}
	dest := make([]driver.Value, 2)
	if err := rows.Next(dest); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if dest[0] != "lin-1" {
		t.Fatalf("unexpected row values: %v", dest)
	}
	_ = rows.Close()

	if _, err := conn.ExecContext(ctx, "DELETE FROM lineages WHERE id = $1", []driver.NamedValue{{Value: "lin-1"}}); err != nil {
		t.Fatalf("ExecContext delete: %v", err)
	}
	if len(conn.Tables["lineages"]) != 0 {
		t.Fatalf("expected row removed, got %v", conn.Tables["lineages"])
	}
}

func TestStubDBFailureToggles(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()
	conn.FailExec, conn.FailQuery, conn.FailBegin = true, true, true
	if err := conn.Ping(ctx); err == nil {
		t.Fatalf("expected ping failure")
	}
	if _, err := conn.ExecContext(ctx, "CREATE TABLE x (id TEXT)", nil); err == nil {
		t.Fatalf("expected exec failure")
	}
	if _, err := conn.QueryContext(ctx, "SELECT id FROM x", nil); err == nil {
		t.Fatalf("expected query failure")
	}
	if _, err := conn.BeginTx(ctx, driver.TxOptions{}); err == nil {
		t.Fatalf("expected begin failure")
	}
}
