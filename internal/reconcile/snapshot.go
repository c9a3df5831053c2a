package reconcile

import (
	"time"

	"party-request-go/internal/store"
)

// Snapshot is a value tagged with where it came from and when.
type Snapshot[T any] struct {
	Value     T
	Source    store.Source
	Revision  int64
	UpdatedAt time.Time
	present   bool
}

func Local[T any](v T, at time.Time) Snapshot[T] {
	return Snapshot[T]{Value: v, Source: store.SourceLocal, UpdatedAt: at, present: true}
}

func Server[T any](v T, at time.Time) Snapshot[T] {
	return Snapshot[T]{Value: v, Source: store.SourceServer, UpdatedAt: at, present: true}
}

// Cached wraps a value read back from the persistent cache.
func Cached[T any](v T, entry *store.Entry) Snapshot[T] {
	s := Snapshot[T]{Value: v, Source: store.SourceCached, present: true}
	if entry != nil {
		s.Revision = entry.Revision
		s.UpdatedAt = entry.UpdatedAt
	}
	return s
}

func (s Snapshot[T]) Present() bool {
	return s.present
}

// Merge decides which snapshot survives when incoming meets current.
//
//   - server replaces anything, unless both are server and incoming is older
//   - local replaces anything; it is the newest user intent
//   - cached only fills an empty slot or replaces an older cached copy
func Merge[T any](current, incoming Snapshot[T]) Snapshot[T] {
	if !incoming.present {
		return current
	}
	if !current.present {
		return incoming
	}

	switch incoming.Source {
	case store.SourceServer:
		if current.Source == store.SourceServer && olderThan(incoming, current) {
			return current
		}
		return incoming
	case store.SourceLocal:
		return incoming
	default:
		if current.Source == store.SourceCached && !olderThan(incoming, current) {
			return incoming
		}
		return current
	}
}

func olderThan[T any](a, b Snapshot[T]) bool {
	if a.Revision != 0 && b.Revision != 0 && a.Revision != b.Revision {
		return a.Revision < b.Revision
	}
	if a.UpdatedAt.IsZero() || b.UpdatedAt.IsZero() {
		return false
	}
	return a.UpdatedAt.Before(b.UpdatedAt)
}
