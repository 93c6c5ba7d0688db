package docops

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/arthur-debert/nanomodel/types"
)

func TestApplyOperators(t *testing.T) {
	tests := []struct {
		name   string
		doc    types.Document
		update types.Document
		want   types.Document
	}{
		{
			name:   "set nested",
			doc:    types.Document{"a": 1},
			update: types.Document{"$set": map[string]any{"b.c": "x"}},
			want:   types.Document{"a": 1, "b": map[string]any{"c": "x"}},
		},
		{
			name:   "unset",
			doc:    types.Document{"a": 1, "b": 2},
			update: types.Document{"$unset": map[string]any{"b": ""}},
			want:   types.Document{"a": 1},
		},
		{
			name:   "inc integer",
			doc:    types.Document{"n": int64(2)},
			update: types.Document{"$inc": map[string]any{"n": 3, "m": 1}},
			want:   types.Document{"n": int64(5), "m": int64(1)},
		},
		{
			name:   "inc float",
			doc:    types.Document{"n": 1.5},
			update: types.Document{"$inc": map[string]any{"n": 1}},
			want:   types.Document{"n": 2.5},
		},
		{
			name:   "push each",
			doc:    types.Document{"tags": []any{"a"}},
			update: types.Document{"$push": map[string]any{"tags": map[string]any{"$each": []any{"b", "c"}}}},
			want:   types.Document{"tags": []any{"a", "b", "c"}},
		},
		{
			name:   "push creates array",
			doc:    types.Document{},
			update: types.Document{"$push": map[string]any{"tags": "a"}},
			want:   types.Document{"tags": []any{"a"}},
		},
		{
			name:   "add to set",
			doc:    types.Document{"tags": []any{"a"}},
			update: types.Document{"$addToSet": map[string]any{"tags": "a"}},
			want:   types.Document{"tags": []any{"a"}},
		},
		{
			name:   "pull value",
			doc:    types.Document{"tags": []any{"a", "b", "a"}},
			update: types.Document{"$pull": map[string]any{"tags": "a"}},
			want:   types.Document{"tags": []any{"b"}},
		},
		{
			name:   "pull by operator",
			doc:    types.Document{"n": []any{1, 5, 7, 2}},
			update: types.Document{"$pull": map[string]any{"n": map[string]any{"$gte": 5}}},
			want:   types.Document{"n": []any{1, 2}},
		},
		{
			name: "pull documents",
			doc: types.Document{"c": []any{
				map[string]any{"by": "al"}, map[string]any{"by": "bo"}, map[string]any{"by": "al"},
			}},
			update: types.Document{"$pull": map[string]any{"c": map[string]any{"by": "al"}}},
			want:   types.Document{"c": []any{map[string]any{"by": "bo"}}},
		},
		{
			name:   "replacement keeps id",
			doc:    types.Document{"_id": "x", "a": 1},
			update: types.Document{"b": 2},
			want:   types.Document{"_id": "x", "b": 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Apply(tt.doc, tt.update); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, tt.doc); diff != "" {
				t.Errorf("document mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestApplyRejects(t *testing.T) {
	bad := []types.Document{
		{"$set": map[string]any{"a": 1}, "b": 2},
		{"$rename": map[string]any{"a": "b"}},
		{"$set": 5},
		{"$inc": map[string]any{"a": "x"}},
		{"$inc": map[string]any{"s": 1}},
		{"$push": map[string]any{"s": 1}},
		{"$unset": map[string]any{"_id": ""}},
		{"$set": map[string]any{"_id": "other"}},
	}
	for _, u := range bad {
		doc := types.Document{"_id": "x", "s": "str"}
		if err := Apply(doc, u); !types.IsBadQuery(err) {
			t.Errorf("update %v: expected BadQuery, got %v", u, err)
		}
	}
}

func TestSelect(t *testing.T) {
	docs := []types.Document{
		{"_id": 1, "name": "c", "age": 30, "meta": map[string]any{"x": 1, "y": 2}},
		{"_id": 2, "name": "a", "age": 20},
		{"_id": 3, "name": "b", "age": 30},
		{"_id": 4, "name": "d"},
	}

	got, err := Select(docs, Selection{
		Query: types.Document{"age": map[string]any{"$gte": 20}},
		Sort:  []types.SortField{{Field: "age", Descending: true}, {Field: "name"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	var names []any
	for _, d := range got {
		names = append(names, d["name"])
	}
	if diff := cmp.Diff([]any{"b", "c", "a"}, names); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}

	got, _ = Select(docs, Selection{Sort: []types.SortField{{Field: "age"}}, Skip: 1, Limit: 2})
	if len(got) != 2 || got[0]["name"] != "a" {
		t.Errorf("expected missing age first then paging, got %v", got)
	}

	got, _ = Select(docs, Selection{Query: types.Document{"_id": 1}, Fields: []string{"meta.x"}})
	want := []types.Document{{"_id": 1, "meta": map[string]any{"x": 1}}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("projection mismatch (-want +got):\n%s", diff)
	}

	// results are copies
	got[0]["meta"].(map[string]any)["x"] = 99
	if docs[0]["meta"].(map[string]any)["x"] != 1 {
		t.Error("select must not expose stored documents")
	}

	if _, err := Select(docs, Selection{Query: types.Document{"a": nil}}); !types.IsBadQuery(err) {
		t.Errorf("expected BadQuery, got %v", err)
	}
}

func TestSeedFromQuery(t *testing.T) {
	seed := SeedFromQuery(types.Document{
		"email": "a@b.c",
		"age":   map[string]any{"$gt": 3},
		"$or":   []any{},
		"p.q":   1,
	})
	want := types.Document{"email": "a@b.c", "p": map[string]any{"q": 1}}
	if diff := cmp.Diff(want, seed); diff != "" {
		t.Errorf("seed mismatch (-want +got):\n%s", diff)
	}
}
