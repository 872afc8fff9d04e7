package ids

import (
	"sync"

	"github.com/google/uuid"
)

// Generator issues strictly increasing time-ordered IDs.
//
// Each value comes from the configured source (uuid.NewV7 by default). If the source
// returns a value that is not greater than the last issued ID, because the wall clock
// stepped backward or the source failed, the generator issues last+1 instead, so the
// sequence from one Generator never decreases.
//
// Thread Safety:
//
//	Safe for concurrent use.
type Generator struct {
	mu     sync.Mutex
	last   ID
	source func() (uuid.UUID, error)
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithSource replaces the UUID source. Used in tests to simulate clock regressions.
func WithSource(fn func() (uuid.UUID, error)) GeneratorOption {
	return func(g *Generator) {
		g.source = fn
	}
}

// NewGenerator creates a Generator backed by uuid.NewV7.
func NewGenerator(opts ...GeneratorOption) *Generator {
	g := &Generator{source: uuid.NewV7}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NewID returns the next identifier.
func (g *Generator) NewID() ID {
	g.mu.Lock()
	defer g.mu.Unlock()

	next := g.last.Next()
	if u, err := g.source(); err == nil {
		if candidate := ID(u); candidate.Compare(g.last) > 0 {
			next = candidate
		}
	}
	g.last = next
	return next
}

// Last returns the most recently issued ID, or Nil.
func (g *Generator) Last() ID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}

var defaultGenerator = NewGenerator()

// New returns an ID from the process-wide generator.
func New() ID {
	return defaultGenerator.NewID()
}
