package docops

import (
	"sort"
	"time"

	"github.com/arthur-debert/nanomodel/internal/matching"
	"github.com/arthur-debert/nanomodel/types"
)

// Selection describes a read over a document slice.
type Selection struct {
	Query  types.Document
	Fields []string
	Sort   []types.SortField
	Skip   int
	Limit  int
}

// Select filters, orders, pages and projects docs. The returned documents
// are deep copies.
func Select(docs []types.Document, sel Selection) ([]types.Document, error) {
	if err := matching.Validate(sel.Query); err != nil {
		return nil, err
	}
	var hits []types.Document
	for _, doc := range docs {
		ok, err := matching.Matches(sel.Query, doc)
		if err != nil {
			return nil, err
		}
		if ok {
			hits = append(hits, doc)
		}
	}

	SortDocuments(hits, sel.Sort)
	hits = Page(hits, sel.Skip, sel.Limit)

	out := make([]types.Document, len(hits))
	for i, doc := range hits {
		out[i] = Project(doc, sel.Fields)
	}
	return out, nil
}

// Project copies doc keeping only fields (dotted paths allowed) and _id.
// An empty field list copies everything.
func Project(doc types.Document, fields []string) types.Document {
	if len(fields) == 0 {
		return types.Clone(doc)
	}
	out := types.Document{}
	if id, ok := doc[types.IDField]; ok {
		out[types.IDField] = id
	}
	for _, f := range fields {
		if v, ok := types.GetPath(doc, f); ok {
			types.SetPath(out, f, types.CloneValue(v))
		}
	}
	return out
}

// Page applies skip and limit. A non-positive limit means no limit.
func Page(docs []types.Document, skip, limit int) []types.Document {
	if skip > 0 {
		if skip >= len(docs) {
			return nil
		}
		docs = docs[skip:]
	}
	if limit > 0 && limit < len(docs) {
		docs = docs[:limit]
	}
	return docs
}

// SortDocuments orders docs in place, stably. Missing values sort first.
func SortDocuments(docs []types.Document, fields []types.SortField) {
	if len(fields) == 0 {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, f := range fields {
			c := compareField(docs[i], docs[j], f.Field)
			if c == 0 {
				continue
			}
			if f.Descending {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func compareField(a, b types.Document, field string) int {
	va, okA := types.GetPath(a, field)
	vb, okB := types.GetPath(b, field)
	if !okA {
		va = nil
	}
	if !okB {
		vb = nil
	}
	ra, rb := typeRank(va), typeRank(vb)
	if ra != rb {
		return ra - rb
	}
	if c, ok := matching.Compare(va, vb); ok {
		return c
	}
	if ida, ok := va.(types.ID); ok {
		if idb, ok := vb.(types.ID); ok {
			return compareStrings(ida.Hex(), idb.Hex())
		}
	}
	return 0
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// typeRank groups values so mixed-type sorts are deterministic.
func typeRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return 1
	case string:
		return 2
	case map[string]any:
		return 3
	case []any:
		return 4
	case []byte:
		return 5
	case types.ID:
		return 6
	case bool:
		return 7
	case time.Time:
		return 8
	default:
		return 9
	}
}
