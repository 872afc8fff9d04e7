package traversal

import (
	"fmt"

	"github.com/orneryd/graphkv/pkg/ids"
)

// Predicate decides whether Filter keeps an element.
type Predicate func(GraphValue) (bool, error)

// Filter keeps the elements for which pred returns true. Failures from upstream pass
// through unchanged; a predicate error is yielded in place of the element.
func (t *Traversal) Filter(pred Predicate) *Traversal {
	up, err := t.upstream()
	if err != nil {
		return t.derive(once(Fail(err)))
	}
	return t.derive(SourceFunc(func() (Result, bool) {
		for {
			r, ok := up.Next()
			if !ok {
				return Result{}, false
			}
			if r.Err != nil {
				return r, true
			}
			keep, err := pred(r.Value)
			if err != nil {
				return Fail(err), true
			}
			if keep {
				return r, true
			}
		}
	}))
}

// HasLabel is a Predicate matching nodes and edges with the given label.
func HasLabel(label string) Predicate {
	return func(v GraphValue) (bool, error) {
		if n, ok := v.Node(); ok {
			return n.Label == label, nil
		}
		if e, ok := v.Edge(); ok {
			return e.Label == label, nil
		}
		return false, nil
	}
}

// Range yields the elements at positions [start, end) of the receiver, counting
// failures as elements. Nothing past end is pulled, so Range bounds infinite sources.
func (t *Traversal) Range(start, end int) *Traversal {
	up, err := t.upstream()
	if err != nil {
		return t.derive(once(Fail(err)))
	}
	if start < 0 {
		start = 0
	}
	pos := 0
	return t.derive(SourceFunc(func() (Result, bool) {
		for pos < end {
			r, ok := up.Next()
			if !ok {
				pos = end
				return Result{}, false
			}
			pos++
			if pos > start {
				return r, true
			}
		}
		return Result{}, false
	}))
}

// Props projects a property of every node or edge. Elements that lack the property
// are skipped; scalar or empty elements yield ErrUnexpectedValue.
func (t *Traversal) Props(key string) *Traversal {
	up, err := t.upstream()
	if err != nil {
		return t.derive(once(Fail(err)))
	}
	return t.derive(SourceFunc(func() (Result, bool) {
		for {
			r, ok := up.Next()
			if !ok {
				return Result{}, false
			}
			if r.Err != nil {
				return r, true
			}
			if n, isNode := r.Value.Node(); isNode {
				if v, has := n.Property(key); has {
					return Ok(ScalarValue(v)), true
				}
				continue
			}
			if e, isEdge := r.Value.Edge(); isEdge {
				if v, has := e.Property(key); has {
					return Ok(ScalarValue(v)), true
				}
				continue
			}
			return Fail(fmt.Errorf("%w: %s has no properties", ErrUnexpectedValue, r.Value.Kind())), true
		}
	}))
}

// Dedup drops nodes and edges already yielded, by id. Scalars are compared by value
// and failures always pass through.
func (t *Traversal) Dedup() *Traversal {
	up, err := t.upstream()
	if err != nil {
		return t.derive(once(Fail(err)))
	}
	seenNodes := make(map[ids.ID]struct{})
	seenEdges := make(map[ids.ID]struct{})
	seenValues := make(map[string]struct{})
	return t.derive(SourceFunc(func() (Result, bool) {
		for {
			r, ok := up.Next()
			if !ok {
				return Result{}, false
			}
			if r.Err != nil {
				return r, true
			}
			var dup bool
			switch r.Value.Kind() {
			case KindNode:
				n, _ := r.Value.Node()
				_, dup = seenNodes[n.ID]
				seenNodes[n.ID] = struct{}{}
			case KindEdge:
				e, _ := r.Value.Edge()
				_, dup = seenEdges[e.ID]
				seenEdges[e.ID] = struct{}{}
			case KindValue:
				v, _ := r.Value.Value()
				key, err := v.MarshalBinary()
				if err != nil {
					return Fail(err), true
				}
				_, dup = seenValues[string(key)]
				seenValues[string(key)] = struct{}{}
			}
			if !dup {
				return r, true
			}
		}
	}))
}
