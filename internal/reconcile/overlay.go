package reconcile

// Overlay returns the local items that the server list does not contain yet
// and that keep still accepts. Server order is authoritative, so the result is
// meant to be shown next to the server list, not merged into it.
func Overlay[T any](server, local []T, id func(T) string, keep func(T) bool) []T {
	seen := make(map[string]struct{}, len(server))
	for _, item := range server {
		seen[id(item)] = struct{}{}
	}

	var pending []T
	for _, item := range local {
		if _, ok := seen[id(item)]; ok {
			continue
		}
		if keep != nil && !keep(item) {
			continue
		}
		pending = append(pending, item)
	}
	return pending
}

// DedupeByID keeps the first occurrence of every id, preserving order.
func DedupeByID[T any](items []T, id func(T) string) []T {
	seen := make(map[string]struct{}, len(items))
	out := make([]T, 0, len(items))
	for _, item := range items {
		k := id(item)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, item)
	}
	return out
}

// Upsert replaces the item with the same id in place, or appends it.
func Upsert[T any](items []T, item T, id func(T) string) []T {
	k := id(item)
	for i := range items {
		if id(items[i]) == k {
			items[i] = item
			return items
		}
	}
	return append(items, item)
}

// Remove drops every item with the given id.
func Remove[T any](items []T, key string, id func(T) string) []T {
	out := items[:0]
	for _, item := range items {
		if id(item) != key {
			out = append(out, item)
		}
	}
	return out
}
