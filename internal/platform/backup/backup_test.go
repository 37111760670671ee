package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestWriteRead_RoundTripWithTimestamps(t *testing.T) {
	created := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	a := NewArchive(time.Now())
	a.Add("patients", []map[string]interface{}{
		{
			"billing_code": "BC-10422",
			"name":         "Maria Gomez",
			"created_at":   created,
			"visits": []interface{}{
				map[string]interface{}{"at": created.Add(48 * time.Hour)},
			},
		},
	})

	var buf bytes.Buffer
	if err := Write(&buf, a); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"__ts"`) {
		t.Error("expected tagged timestamps in the encoded archive")
	}

	got, err := Read(&buf)
	if err != nil {
		t.Fatal(err)
	}
	doc := got.Collections["patients"][0]
	ts, ok := doc["created_at"].(time.Time)
	if !ok {
		t.Fatalf("created_at did not decode to time.Time: %T", doc["created_at"])
	}
	if !ts.Equal(created) {
		t.Errorf("expected %v, got %v", created, ts)
	}
	nested := doc["visits"].([]interface{})[0].(map[string]interface{})
	if _, ok := nested["at"].(time.Time); !ok {
		t.Errorf("nested timestamp did not decode: %T", nested["at"])
	}
}

func TestRead_RejectsForeignApp(t *testing.T) {
	in := `{"meta":{"app":"otherapp","version":1,"exported_at":"2026-03-14T00:00:00Z"},"collections":{}}`
	_, err := Read(strings.NewReader(in))
	if !errors.Is(err, ErrWrongApp) {
		t.Errorf("expected ErrWrongApp, got %v", err)
	}
}

func TestRead_RejectsUnsupportedVersion(t *testing.T) {
	in := `{"meta":{"app":"clinerva","version":99,"exported_at":"2026-03-14T00:00:00Z"},"collections":{}}`
	_, err := Read(strings.NewReader(in))
	if !errors.Is(err, ErrUnsupportedVersion) {
		t.Errorf("expected ErrUnsupportedVersion, got %v", err)
	}
}

func TestRead_RejectsMissingMeta(t *testing.T) {
	_, err := Read(strings.NewReader(`{"collections":{}}`))
	if !errors.Is(err, ErrMissingMeta) {
		t.Errorf("expected ErrMissingMeta, got %v", err)
	}
}

func TestRestore_ChunksOfFourHundred(t *testing.T) {
	a := NewArchive(time.Now())
	docs := make([]map[string]interface{}, 950)
	for i := range docs {
		docs[i] = map[string]interface{}{"n": i}
	}
	a.Add("audit_entries", docs)

	var sizes []int
	stats, err := Restore(context.Background(), a, func(_ context.Context, coll string, chunk []map[string]interface{}) error {
		if coll != "audit_entries" {
			t.Errorf("unexpected collection %q", coll)
		}
		sizes = append(sizes, len(chunk))
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if stats.Documents != 950 || stats.Collections != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
	want := []int{400, 400, 150}
	if len(sizes) != len(want) {
		t.Fatalf("expected %v chunks, got %v", want, sizes)
	}
	for i := range want {
		if sizes[i] != want[i] {
			t.Errorf("chunk %d: expected %d docs, got %d", i, want[i], sizes[i])
		}
	}
}

func TestRestore_AbortKeepsCommittedChunks(t *testing.T) {
	a := NewArchive(time.Now())
	docs := make([]map[string]interface{}, 900)
	for i := range docs {
		docs[i] = map[string]interface{}{"n": i}
	}
	a.Add("patients", docs)

	calls := 0
	stats, err := Restore(context.Background(), a, func(context.Context, string, []map[string]interface{}) error {
		calls++
		if calls == 2 {
			return fmt.Errorf("connection reset")
		}
		return nil
	})
	if err == nil {
		t.Fatal("expected restore to fail")
	}
	if stats.Documents != 400 {
		t.Errorf("expected 400 committed documents, got %d", stats.Documents)
	}
	if calls != 2 {
		t.Errorf("expected restore to stop after the failing chunk, got %d calls", calls)
	}
}

func TestRestore_PreservesExportOrder(t *testing.T) {
	a := NewArchive(time.Now())
	a.Add("users", []map[string]interface{}{{"id": 1}})
	a.Add("patients", []map[string]interface{}{{"id": 2}})
	a.Add("appointments", []map[string]interface{}{{"id": 3}})

	var order []string
	_, err := Restore(context.Background(), a, func(_ context.Context, coll string, _ []map[string]interface{}) error {
		order = append(order, coll)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"users", "patients", "appointments"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, order)
		}
	}
}
