package storage

import (
	"encoding/json"
	"testing"
	"time"
)

func TestMarshalJSONEmpty(t *testing.T) {
	raw, err := marshalJSON(nil)
	if err != nil || raw != nil {
		t.Fatalf("expected nil for nil value, got %s (%v)", raw, err)
	}
	var empty []string
	raw, err = marshalJSON(empty)
	if err != nil || raw != nil {
		t.Fatalf("expected nil for nil slice, got %s (%v)", raw, err)
	}
	raw, err = marshalJSON([]string{"a"})
	if err != nil || string(raw) != `["a"]` {
		t.Fatalf("expected encoded slice, got %s (%v)", raw, err)
	}
}

func TestUnmarshalJSONEmptyLeavesTarget(t *testing.T) {
	target := []string{"keep"}
	if err := unmarshalJSON(nil, &target); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(target) != 1 {
		t.Fatalf("expected target untouched, got %v", target)
	}
	if err := unmarshalJSON(json.RawMessage(`{`), &target); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestVectorConversion(t *testing.T) {
	if toVector(nil) != nil {
		t.Fatalf("expected nil vector for empty embedding")
	}
	if fromVector(nil) != nil {
		t.Fatalf("expected nil slice for NULL column")
	}
	v := toVector([]float32{0.5, -1})
	got := fromVector(v)
	if len(got) != 2 || got[0] != 0.5 || got[1] != -1 {
		t.Fatalf("unexpected vector values: %v", got)
	}
}

func TestMemoryFromModel(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	mem := memoryFromModel(memoryModel{
		ID:           "m1",
		Content:      "my sister visits",
		Importance:   0.8,
		Attributes:   json.RawMessage(`["family"]`),
		CreatedAt:    now,
		LastAccessed: now,
	})
	if mem.ID != "m1" || mem.Importance != 0.8 || len(mem.AssociatedAttributes) != 1 || mem.AssociatedAttributes[0] != "family" {
		t.Fatalf("unexpected memory: %#v", mem)
	}
	if mem.Embedding != nil {
		t.Fatalf("expected nil embedding")
	}
}

func TestModelsCoverAllTables(t *testing.T) {
	seen := make(map[string]bool)
	for _, m := range Models() {
		tabler, ok := m.(interface{ TableName() string })
		if !ok {
			t.Fatalf("model %T has no table name", m)
		}
		if seen[tabler.TableName()] {
			t.Fatalf("duplicate table %s", tabler.TableName())
		}
		seen[tabler.TableName()] = true
	}
	if len(seen) != 11 {
		t.Fatalf("expected 11 tables, got %d", len(seen))
	}
}

func TestTableNamesFollowModels(t *testing.T) {
	names := TableNames()
	if len(names) != len(Models()) {
		t.Fatalf("expected %d names, got %d", len(Models()), len(names))
	}
	if names[0] != "turns" || names[len(names)-1] != "media_interactions" {
		t.Fatalf("expected turns first and media_interactions last, got %v", names)
	}
}

func TestCloseWithoutConnection(t *testing.T) {
	s := &Store{}
	s.Close()
	if s.DB() != nil {
		t.Fatalf("expected no gorm handle")
	}
}
