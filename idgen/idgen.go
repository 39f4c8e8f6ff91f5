// Package idgen provides the ID generators used by desim.
//
// Sequential generators hand out the insertion sequence numbers that break
// ties between events scheduled at the same time, so they must be owned by a
// single scheduler. Unique generators produce globally unique names for runs
// and recordings.
package idgen

import (
	"sync/atomic"

	"github.com/rs/xid"
)

// ID is a sequence number represented as a uint64. The zero ID is never
// generated.
type ID uint64

// Generator produces increasing identifiers.
type Generator interface {
	Generate() ID
}

// New returns a sequential generator whose first emitted ID is "1".
func New() Generator {
	return &sequentialGenerator{}
}

// NewStartingAt returns a sequential generator whose first emitted ID is
// next. It is useful to resume numbering of a restored simulation.
func NewStartingAt(next ID) Generator {
	if next == 0 {
		next = 1
	}

	return &sequentialGenerator{next: uint64(next) - 1}
}

type sequentialGenerator struct {
	next uint64
}

func (g *sequentialGenerator) Generate() ID {
	return ID(atomic.AddUint64(&g.next, 1))
}

// UniqueName returns a globally unique, time-sortable name with the given
// prefix.
func UniqueName(prefix string) string {
	return prefix + xid.New().String()
}
