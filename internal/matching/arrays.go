package matching

import "github.com/arthur-debert/nanomodel/types"

// Find returns the items matching query, in order. Items that are not
// documents never match.
func Find[T any](query map[string]any, items []T) ([]T, error) {
	if err := Validate(query); err != nil {
		return nil, err
	}
	var out []T
	for _, item := range items {
		ok, err := matchItem(query, item)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, item)
		}
	}
	return out, nil
}

// FindOne returns the first matching item. The boolean is false when
// nothing matched.
func FindOne[T any](query map[string]any, items []T) (T, bool, error) {
	var zero T
	i, err := IndexOf(query, items)
	if err != nil || i < 0 {
		return zero, false, err
	}
	return items[i], true, nil
}

// IndexOf returns the position of the first matching item, or -1.
func IndexOf[T any](query map[string]any, items []T) (int, error) {
	if err := Validate(query); err != nil {
		return -1, err
	}
	for i, item := range items {
		ok, err := matchItem(query, item)
		if err != nil {
			return -1, err
		}
		if ok {
			return i, nil
		}
	}
	return -1, nil
}

// Remove deletes every matching item in place and returns the shortened
// slice and the number of removed items. After each splice the same index
// is examined again, since it now holds the next element.
func Remove[T any](query map[string]any, items []T) ([]T, int, error) {
	if err := Validate(query); err != nil {
		return items, 0, err
	}
	removed := 0
	for i := 0; i < len(items); i++ {
		ok, err := matchItem(query, items[i])
		if err != nil {
			return items, removed, err
		}
		if !ok {
			continue
		}
		items = append(items[:i], items[i+1:]...)
		removed++
		i--
	}
	return items, removed, nil
}

func matchItem[T any](query map[string]any, item T) (bool, error) {
	doc, ok := types.AsMap(any(item))
	if !ok {
		return false, nil
	}
	return Matches(query, doc)
}
