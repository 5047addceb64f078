package ordernumber

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const prefix = "ORD-"

type Generator interface {
	Next() string
}

type ulidGenerator struct {
	mu      sync.Mutex
	entropy io.Reader
	now     func() time.Time
}

// NewGenerator returns order numbers of the form ORD-<ULID>. ULIDs generated
// within the same millisecond are monotonically increasing.
func NewGenerator() Generator {
	return &ulidGenerator{
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
	}
}

func (g *ulidGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := ulid.MustNew(ulid.Timestamp(g.now()), g.entropy)
	return prefix + id.String()
}
