package conversation

import (
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// IDSource generates message identifiers. Implementations must never return
// the same value twice for one Store.
type IDSource func() string

// UUIDSource returns time-ordered UUIDv7 identifiers. uuid.NewV7 keeps a
// monotonic sequence within a millisecond, so ids created back to back stay
// unique and sortable.
func UUIDSource() IDSource {
	return func() string {
		id, err := uuid.NewV7()
		if err != nil {
			return uuid.NewString()
		}
		return id.String()
	}
}

// CounterSource returns identifiers "<prefix>1", "<prefix>2", ... It is
// deterministic, which makes it the source of choice in tests.
func CounterSource(prefix string) IDSource {
	var n atomic.Uint64
	return func() string {
		return prefix + strconv.FormatUint(n.Add(1), 10)
	}
}
