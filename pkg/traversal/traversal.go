// Package traversal implements the graph operator pipeline.
//
// A Traversal is a lazily pulled, forward-only sequence of Results bound to one storage
// transaction. Operators are methods that consume a Traversal and return a new one
// carrying the same engine and transaction; the transaction is shared, never copied.
//
// Two kinds of operators exist and the difference is deliberate:
//
//   - Read-only operators (NFromID, NFromLabel, Out, Filter, Range, ...) build a source
//     that does nothing until the consumer pulls the next element.
//   - Mutating operators (AddN, AddE, UpdateN, Drop) perform their writes when they are
//     called and return a traversal over the precomputed result. Their error is known as
//     soon as the call returns, while they still compose with lazy operators downstream.
//
// The caller owns the transaction: operators never commit or roll back. When any
// mutating operator yields a failure, some of its writes may already be in the
// transaction; roll the transaction back instead of continuing the chain.
//
// Example:
//
//	tx, _ := engine.BeginWrite()
//	res := traversal.New(engine, tx).
//		AddN("person", map[string]storage.Value{"name": storage.NewString("Ada")},
//			[]string{"by_name"}, ids.Nil).
//		Results()
//	if res[0].Err != nil {
//		tx.Rollback()
//		return res[0].Err
//	}
//	return tx.Commit()
//
// Thread Safety:
//
//	A Traversal and every traversal derived from it borrow the transaction; drive them
//	from one goroutine and do not use them after the transaction ends.
package traversal

import (
	"github.com/orneryd/graphkv/pkg/ids"
	"github.com/orneryd/graphkv/pkg/metrics"
	"github.com/orneryd/graphkv/pkg/storage"
	"go.uber.org/zap"
)

// Source produces the elements of a traversal. Next returns false once the sequence
// has ended; a source may also never end.
type Source interface {
	Next() (Result, bool)
}

// SourceFunc adapts a function to Source.
type SourceFunc func() (Result, bool)

// Next calls f.
func (f SourceFunc) Next() (Result, bool) { return f() }

// onceSource yields exactly one precomputed result. Mutating operators return it.
type onceSource struct {
	res  Result
	done bool
}

func once(res Result) *onceSource { return &onceSource{res: res} }

func (s *onceSource) Next() (Result, bool) {
	if s.done {
		return Result{}, false
	}
	s.done = true
	return s.res, true
}

// sliceSource yields precomputed results in order.
type sliceSource struct {
	results []Result
	pos     int
}

func (s *sliceSource) Next() (Result, bool) {
	if s.pos >= len(s.results) {
		return Result{}, false
	}
	r := s.results[s.pos]
	s.pos++
	return r, true
}

type emptySource struct{}

func (emptySource) Next() (Result, bool) { return Result{}, false }

// Traversal is one stage of an operator chain.
type Traversal struct {
	engine   *storage.BadgerEngine
	txn      *storage.Txn
	gen      *ids.Generator
	logger   *zap.Logger
	src      Source
	consumed bool
}

// Option configures a Traversal.
type Option func(*Traversal)

// WithGenerator sets the id generator used by AddN and AddE. The process-wide generator
// is used by default.
func WithGenerator(g *ids.Generator) Option {
	return func(t *Traversal) {
		t.gen = g
	}
}

// WithLogger overrides the logger, which defaults to the engine's.
func WithLogger(l *zap.Logger) Option {
	return func(t *Traversal) {
		t.logger = l
	}
}

// New starts an empty traversal over txn.
func New(engine *storage.BadgerEngine, txn *storage.Txn, opts ...Option) *Traversal {
	return FromSource(engine, txn, emptySource{}, opts...)
}

// FromValues starts a traversal that yields vals.
func FromValues(engine *storage.BadgerEngine, txn *storage.Txn, vals []GraphValue, opts ...Option) *Traversal {
	results := make([]Result, len(vals))
	for i, v := range vals {
		results[i] = Ok(v)
	}
	return FromSource(engine, txn, &sliceSource{results: results}, opts...)
}

// FromSource starts a traversal over an arbitrary source, which may be infinite.
func FromSource(engine *storage.BadgerEngine, txn *storage.Txn, src Source, opts ...Option) *Traversal {
	t := &Traversal{engine: engine, txn: txn, src: src}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = engine.Logger()
	}
	t.logger = t.logger.Named("traversal")
	return t
}

// Txn returns the transaction the traversal is bound to.
func (t *Traversal) Txn() *storage.Txn { return t.txn }

// Engine returns the storage handle the traversal is bound to.
func (t *Traversal) Engine() *storage.BadgerEngine { return t.engine }

// upstream hands the current source to an operator. A traversal can be consumed once;
// afterwards it yields a single ErrConsumed failure.
func (t *Traversal) upstream() (Source, error) {
	if t.consumed {
		return nil, ErrConsumed
	}
	src := t.src
	t.consumed = true
	t.src = once(Fail(ErrConsumed))
	return src, nil
}

// derive returns the next stage, bound to the same engine and transaction.
func (t *Traversal) derive(src Source) *Traversal {
	return &Traversal{
		engine: t.engine,
		txn:    t.txn,
		gen:    t.gen,
		logger: t.logger,
		src:    src,
	}
}

func (t *Traversal) newID() ids.ID {
	if t.gen != nil {
		return t.gen.NewID()
	}
	return ids.New()
}

// observe records a mutating operator's outcome.
func (t *Traversal) observe(op string, err error) {
	metrics.ObserveOperator(op, err)
	if err != nil {
		t.logger.Debug("operator failed",
			zap.String("operator", op),
			zap.Error(err),
			zap.Errors("causes", Causes(err)))
	}
}

// Next pulls the next element. It returns false when the traversal has ended.
func (t *Traversal) Next() (Result, bool) {
	if t.src == nil {
		return Result{}, false
	}
	return t.src.Next()
}

// Results drains the traversal and returns every element, failures included.
func (t *Traversal) Results() []Result {
	src, err := t.upstream()
	if err != nil {
		return []Result{Fail(err)}
	}
	var out []Result
	for {
		r, ok := src.Next()
		if !ok {
			return out
		}
		out = append(out, r)
	}
}

// Collect drains the traversal, stopping at the first failure. The values gathered
// before the failure are returned with it.
func (t *Traversal) Collect() ([]GraphValue, error) {
	src, err := t.upstream()
	if err != nil {
		return nil, err
	}
	var out []GraphValue
	for {
		r, ok := src.Next()
		if !ok {
			return out, nil
		}
		if r.Err != nil {
			return out, r.Err
		}
		out = append(out, r.Value)
	}
}

// Count drains the traversal and counts its elements, stopping at the first failure.
func (t *Traversal) Count() (int, error) {
	src, err := t.upstream()
	if err != nil {
		return 0, err
	}
	n := 0
	for {
		r, ok := src.Next()
		if !ok {
			return n, nil
		}
		if r.Err != nil {
			return n, r.Err
		}
		n++
	}
}

// First returns the first element, pulling nothing beyond it.
func (t *Traversal) First() (GraphValue, error) {
	src, err := t.upstream()
	if err != nil {
		return EmptyValue(), err
	}
	r, ok := src.Next()
	if !ok {
		return EmptyValue(), ErrNoResults
	}
	return r.Value, r.Err
}
