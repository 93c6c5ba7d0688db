package matching

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/arthur-debert/nanomodel/types"
)

type caseInsensitive string

func (c caseInsensitive) Equal(other any) bool {
	s, ok := other.(string)
	if !ok {
		return false
	}
	return len(s) == len(c) && (s == string(c) || lower(s) == lower(string(c)))
}

func lower(s string) string {
	b := []byte(s)
	for i, ch := range b {
		if ch >= 'A' && ch <= 'Z' {
			b[i] = ch + 32
		}
	}
	return string(b)
}

func TestMatches(t *testing.T) {
	id := types.NewID()
	obj := map[string]any{
		"a":    1,
		"name": "Bob",
		"tags": []any{"x", "y"},
		"_id":  id,
		"sub":  map[string]any{"b": 2.0},
		"when": time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	tests := []struct {
		name  string
		query map[string]any
		want  bool
	}{
		{"$in hit", map[string]any{"a": map[string]any{"$in": []any{1, 2}}}, true},
		{"$nin hit", map[string]any{"a": map[string]any{"$nin": []any{1, 2}}}, false},
		{"$nin miss", map[string]any{"a": map[string]any{"$nin": []any{3}}}, true},
		{"$ne equal", map[string]any{"a": map[string]any{"$ne": 1}}, false},
		{"$ne different", map[string]any{"a": map[string]any{"$ne": 2}}, true},
		{"absent field", map[string]any{"missing": 1}, false},
		{"absent field $ne", map[string]any{"missing": map[string]any{"$ne": 1}}, false},
		{"absent field $nin", map[string]any{"missing": map[string]any{"$nin": []any{1}}}, false},
		{"equality", map[string]any{"name": "Bob"}, true},
		{"numeric across types", map[string]any{"a": 1.0}, true},
		{"array contains", map[string]any{"tags": "y"}, true},
		{"array equality", map[string]any{"tags": []any{"x", "y"}}, true},
		{"identity", map[string]any{"_id": id}, true},
		{"identity $in", map[string]any{"_id": map[string]any{"$in": []any{types.NewID(), id}}}, true},
		{"dotted path", map[string]any{"sub.b": 2}, true},
		{"sub document", map[string]any{"sub": map[string]any{"b": 2}}, true},
		{"custom equal", map[string]any{"name": caseInsensitive("BOB")}, true},
		{"$gt", map[string]any{"a": map[string]any{"$gt": 0}}, true},
		{"$lte", map[string]any{"a": map[string]any{"$lte": 0}}, false},
		{"time $lt", map[string]any{"when": map[string]any{"$lt": time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}}, true},
		{"$exists false", map[string]any{"missing": map[string]any{"$exists": false}}, true},
		{"$or", map[string]any{"$or": []any{map[string]any{"a": 5}, map[string]any{"name": "Bob"}}}, true},
		{"$and", map[string]any{"$and": []any{map[string]any{"a": 1}, map[string]any{"name": "Al"}}}, false},
		{"empty query", map[string]any{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Matches(tt.query, obj)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestBadQueries(t *testing.T) {
	obj := map[string]any{"a": 1}
	bad := []map[string]any{
		{"a": nil},
		{"a": map[string]any{"$ne": nil}},
		{"a": map[string]any{"$in": 1}},
		{"a": map[string]any{"$in": []any{nil}}},
		{"a": map[string]any{"$regex": "x"}},
		{"$where": "x"},
		{"$or": []any{}},
		// The malformed clause must be reported even when another clause fails first.
		{"missing": 1, "b": nil},
	}
	for _, q := range bad {
		if _, err := Matches(q, obj); err == nil || !types.IsBadQuery(err) {
			t.Errorf("query %v: expected BadQuery, got %v", q, err)
		}
		if Match(q, obj) != Invalid {
			t.Errorf("query %v: expected Invalid result", q)
		}
	}
	if Match(map[string]any{"a": 1}, obj) != Matched {
		t.Error("expected Matched")
	}
	if Match(map[string]any{"a": 2}, obj) != NoMatch {
		t.Error("expected NoMatch")
	}
}

func TestArrayHelpers(t *testing.T) {
	items := []any{
		map[string]any{"k": 1, "v": "a"},
		map[string]any{"k": 2, "v": "b"},
		map[string]any{"k": 2, "v": "c"},
		"not a document",
		map[string]any{"k": 3, "v": "d"},
	}

	found, err := Find(map[string]any{"k": 2}, items)
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(found))
	}

	first, ok, err := FindOne(map[string]any{"k": map[string]any{"$gt": 1}}, items)
	if err != nil || !ok {
		t.Fatalf("expected a match, got ok=%v err=%v", ok, err)
	}
	if first.(map[string]any)["v"] != "b" {
		t.Errorf("expected first match v=b, got %v", first)
	}

	idx, err := IndexOf(map[string]any{"v": "d"}, items)
	if err != nil || idx != 4 {
		t.Errorf("expected index 4, got %d (err=%v)", idx, err)
	}
	idx, _ = IndexOf(map[string]any{"v": "zzz"}, items)
	if idx != -1 {
		t.Errorf("expected -1, got %d", idx)
	}

	if _, err := Find(map[string]any{"k": nil}, items); !types.IsBadQuery(err) {
		t.Errorf("expected BadQuery from Find, got %v", err)
	}
}

func TestRemoveAdjacentMatches(t *testing.T) {
	items := []map[string]any{
		{"k": 1}, {"k": 2}, {"k": 2}, {"k": 2}, {"k": 3}, {"k": 2},
	}
	out, n, err := Remove(map[string]any{"k": 2}, items)
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Errorf("expected 4 removed, got %d", n)
	}
	want := []map[string]any{{"k": 1}, {"k": 3}}
	if diff := cmp.Diff(want, out); diff != "" {
		t.Errorf("remaining items mismatch (-want +got):\n%s", diff)
	}
}

func TestEqual(t *testing.T) {
	id := types.NewID()
	if !Equal(id, id) {
		t.Error("identical ids should be equal")
	}
	if Equal(id, types.NewID()) {
		t.Error("distinct ids should differ")
	}
	if !Equal(int32(3), 3.0) {
		t.Error("numbers should compare by value")
	}
	if Equal("3", 3) {
		t.Error("strings and numbers never compare equal")
	}
	if !Equal([]byte("ab"), []byte("ab")) {
		t.Error("byte slices should compare by content")
	}
}
