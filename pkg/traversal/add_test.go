package traversal

import (
	"errors"
	"testing"

	"github.com/orneryd/graphkv/pkg/ids"
	"github.com/orneryd/graphkv/pkg/metrics"
	"github.com/orneryd/graphkv/pkg/storage"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var byName = storage.IndexDef{Name: "by_name", Property: "name"}

func setupTestEngine(t *testing.T, indices ...storage.IndexDef) *storage.BadgerEngine {
	t.Helper()
	engine, err := storage.OpenInMemory(indices...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })
	return engine
}

// beginWrite opens a write transaction that is rolled back at cleanup if still active.
func beginWrite(t *testing.T, engine *storage.BadgerEngine) *storage.Txn {
	t.Helper()
	tx, err := engine.BeginWrite()
	require.NoError(t, err)
	t.Cleanup(func() {
		if tx.IsActive() {
			_ = tx.Rollback()
		}
	})
	return tx
}

func props(kv ...any) map[string]storage.Value {
	m := make(map[string]storage.Value, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		v, err := storage.FromAny(kv[i+1])
		if err != nil {
			panic(err)
		}
		m[kv[i].(string)] = v
	}
	return m
}

func addNode(t *testing.T, engine *storage.BadgerEngine, tx *storage.Txn, label string, p map[string]storage.Value, indices ...string) *storage.Node {
	t.Helper()
	v, err := New(engine, tx).AddN(label, p, indices, ids.Nil).First()
	require.NoError(t, err)
	n, ok := v.Node()
	require.True(t, ok)
	return n
}

func nodeCount(t *testing.T, engine *storage.BadgerEngine) int {
	t.Helper()
	var n int
	require.NoError(t, engine.View(func(tx *storage.Txn) error {
		var err error
		n, err = tx.Count(engine.NodeTable())
		return err
	}))
	return n
}

func TestAddN_WithoutIndices(t *testing.T) {
	engine := setupTestEngine(t)
	tx := beginWrite(t, engine)

	results := New(engine, tx).AddN("person", props("name", "Ada"), nil, ids.Nil).Results()
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)

	node, ok := results[0].Value.Node()
	require.True(t, ok)
	assert.False(t, node.ID.IsZero())
	assert.Equal(t, "person", node.Label)
	name, _ := node.Property("name")
	assert.Equal(t, "Ada", name.Any())

	require.NoError(t, tx.Commit())

	require.NoError(t, engine.View(func(rtx *storage.Txn) error {
		n, err := rtx.Count(engine.NodeTable())
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		raw, err := rtx.Get(engine.NodeTable(), node.ID[:])
		require.NoError(t, err)
		stored, err := storage.DecodeNode(raw)
		require.NoError(t, err)
		assert.True(t, stored.Equal(node))
		return nil
	}))
}

func TestAddN_NilPropertiesStoredAsEmpty(t *testing.T) {
	engine := setupTestEngine(t)
	tx := beginWrite(t, engine)

	node := addNode(t, engine, tx, "thing", nil)
	assert.NotNil(t, node.Properties)
	assert.Empty(t, node.Properties)

	stored, err := tx.GetNode(node.ID)
	require.NoError(t, err)
	assert.True(t, stored.Equal(node))
}

func TestAddN_CopiesProperties(t *testing.T) {
	engine := setupTestEngine(t)
	tx := beginWrite(t, engine)

	p := props("name", "Ada")
	node := addNode(t, engine, tx, "person", p)
	p["name"] = storage.NewString("changed")

	name, _ := node.Property("name")
	assert.Equal(t, "Ada", name.Any())
}

func TestAddN_WritesSecondaryIndex(t *testing.T) {
	engine := setupTestEngine(t, byName)
	tx := beginWrite(t, engine)

	before := testutil.ToFloat64(metrics.IndexWritesCounter.WithLabelValues("by_name"))
	node := addNode(t, engine, tx, "person", props("name", "Bob"), "by_name")
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.IndexWritesCounter.WithLabelValues("by_name")))

	table, ok := engine.SecondaryIndex("by_name")
	require.True(t, ok)
	key, err := storage.NewString("Bob").MarshalBinary()
	require.NoError(t, err)

	// Visible in the same transaction, before commit.
	raw, err := tx.Get(table, key)
	require.NoError(t, err)
	assert.Equal(t, node.ID.Bytes(), raw)

	got, err := New(engine, tx).NFromIndex("by_name", storage.NewString("Bob")).First()
	require.NoError(t, err)
	gotNode, _ := got.Node()
	assert.True(t, gotNode.Equal(node))
}

func TestAddN_MissingPropertyFailsAndAbortLeavesNothing(t *testing.T) {
	engine := setupTestEngine(t, byName)
	tx := beginWrite(t, engine)

	results := New(engine, tx).AddN("person", props("age", 36), []string{"by_name"}, ids.Nil).Results()
	require.Len(t, results, 1)
	err := results[0].Err
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNodeInsert)
	assert.Equal(t, "failed to add node to secondary indices", err.Error())
	assert.True(t, results[0].Value.IsEmpty())

	causes := Causes(err)
	require.Len(t, causes, 1)
	assert.ErrorIs(t, causes[0], ErrData)

	// The primary write is in the transaction; the caller aborts.
	n, err := tx.Count(engine.NodeTable())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NoError(t, tx.Rollback())

	assert.Equal(t, 0, nodeCount(t, engine))
}

func TestAddN_UndeclaredIndexCollapsesToSameMessage(t *testing.T) {
	engine := setupTestEngine(t, byName)
	tx := beginWrite(t, engine)

	_, missingProp := New(engine, tx).AddN("person", props("age", 1), []string{"by_name"}, ids.Nil).First()
	_, undeclared := New(engine, tx).AddN("person", props("name", "Bob"), []string{"by_email"}, ids.Nil).First()

	require.Error(t, missingProp)
	require.Error(t, undeclared)
	assert.Equal(t, missingProp.Error(), undeclared.Error())
	assert.Equal(t, "failed to add node to secondary indices", undeclared.Error())

	// The detail is opt-in.
	assert.NotErrorIs(t, undeclared, ErrSchema)
	var opErr *OpError
	require.True(t, errors.As(undeclared, &opErr))
	assert.Equal(t, "add_n", opErr.Op)
	assert.ErrorIs(t, opErr.Last(), ErrSchema)
}

func TestAddN_AttemptsEveryIndex(t *testing.T) {
	engine := setupTestEngine(t, byName, storage.IndexDef{Name: "email"})
	tx := beginWrite(t, engine)

	_, err := New(engine, tx).
		AddN("person", props("name", "Cy"), []string{"missing", "email", "by_name"}, ids.Nil).
		First()
	require.ErrorIs(t, err, ErrNodeInsert)

	causes := Causes(err)
	require.Len(t, causes, 2)
	assert.ErrorIs(t, causes[0], ErrSchema)
	assert.ErrorIs(t, causes[1], ErrData)

	// by_name came after the failures and was still written.
	table, _ := engine.SecondaryIndex("by_name")
	key, _ := storage.NewString("Cy").MarshalBinary()
	ok, err := tx.Has(table, key)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAddN_ExplicitID(t *testing.T) {
	engine := setupTestEngine(t)
	id := ids.New()

	tx := beginWrite(t, engine)
	v, err := New(engine, tx).AddN("person", props("name", "Ada"), nil, id).First()
	require.NoError(t, err)
	node, _ := v.Node()
	assert.Equal(t, id, node.ID)
	require.NoError(t, tx.Commit())
}

func TestAddN_ExplicitIDReuseAcrossTransactionsFails(t *testing.T) {
	engine := setupTestEngine(t)
	id := ids.New()

	tx := beginWrite(t, engine)
	_, err := New(engine, tx).AddN("person", props("name", "Ada"), nil, id).First()
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	tx = beginWrite(t, engine)
	_, err = New(engine, tx).AddN("person", props("name", "Imposter"), nil, id).First()
	require.ErrorIs(t, err, ErrNodeInsert)
	causes := Causes(err)
	require.Len(t, causes, 1)
	assert.ErrorIs(t, causes[0], ErrStorage)
	assert.ErrorIs(t, causes[0], storage.ErrKeyOutOfOrder)
	require.NoError(t, tx.Rollback())

	// The original record is untouched.
	require.NoError(t, engine.View(func(rtx *storage.Txn) error {
		n, err := rtx.GetNode(id)
		require.NoError(t, err)
		name, _ := n.Property("name")
		assert.Equal(t, "Ada", name.Any())
		return nil
	}))
}

func TestAddN_DroppedIDIsNotReused(t *testing.T) {
	engine := setupTestEngine(t)
	id := ids.New()

	require.NoError(t, engine.Update(func(tx *storage.Txn) error {
		_, err := New(engine, tx).AddN("person", props("name", "Ada"), nil, id).First()
		return err
	}))
	require.NoError(t, engine.Update(func(tx *storage.Txn) error {
		_, err := New(engine, tx).NFromID(id).Drop().First()
		return err
	}))
	require.Zero(t, nodeCount(t, engine))

	tx := beginWrite(t, engine)
	_, err := New(engine, tx).AddN("person", props("name", "Ada"), nil, id).First()
	require.ErrorIs(t, err, ErrNodeInsert)
	assert.ErrorIs(t, Causes(err)[0], storage.ErrKeyOutOfOrder)

	// Generated ids still move forward.
	_, err = New(engine, tx).AddN("person", nil, nil, ids.Nil).First()
	assert.NoError(t, err)
}

func TestAddN_ExplicitIDBelowExistingFails(t *testing.T) {
	engine := setupTestEngine(t)
	early := ids.New()
	tx := beginWrite(t, engine)
	addNode(t, engine, tx, "person", nil)

	_, err := New(engine, tx).AddN("person", nil, nil, early).First()
	require.ErrorIs(t, err, ErrNodeInsert)
	assert.ErrorIs(t, Causes(err)[0], storage.ErrKeyOutOfOrder)
}

func TestAddN_UsesGenerator(t *testing.T) {
	engine := setupTestEngine(t)
	tx := beginWrite(t, engine)
	gen := ids.NewGenerator()

	var prev ids.ID
	for i := 0; i < 5; i++ {
		v, err := New(engine, tx, WithGenerator(gen)).AddN("n", nil, nil, ids.Nil).First()
		require.NoError(t, err)
		node, _ := v.Node()
		assert.Positive(t, node.ID.Compare(prev))
		prev = node.ID
	}
	assert.Equal(t, prev, gen.Last())
}

func TestFromValues_AppliesOptions(t *testing.T) {
	engine := setupTestEngine(t)
	tx := beginWrite(t, engine)
	gen := ids.NewGenerator()

	seed := []GraphValue{ScalarValue(storage.NewInt(1))}
	v, err := FromValues(engine, tx, seed, WithGenerator(gen)).AddN("n", nil, nil, ids.Nil).First()
	require.NoError(t, err)
	node, _ := v.Node()
	assert.Equal(t, gen.Last(), node.ID)
}

func TestAddN_IsEager(t *testing.T) {
	engine := setupTestEngine(t)
	tx := beginWrite(t, engine)

	// Never pulled.
	_ = New(engine, tx).AddN("person", nil, nil, ids.Nil)

	n, err := tx.Count(engine.NodeTable())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestAddN_ClosedTransaction(t *testing.T) {
	engine := setupTestEngine(t)
	tx := beginWrite(t, engine)
	require.NoError(t, tx.Rollback())

	_, err := New(engine, tx).AddN("person", nil, nil, ids.Nil).First()
	require.ErrorIs(t, err, ErrNodeInsert)
	assert.ErrorIs(t, Causes(err)[0], storage.ErrTransactionClosed)
}

func TestAddN_ReadOnlyTransaction(t *testing.T) {
	engine := setupTestEngine(t)
	tx, err := engine.BeginRead()
	require.NoError(t, err)
	defer tx.Rollback()

	_, err = New(engine, tx).AddN("person", nil, nil, ids.Nil).First()
	require.ErrorIs(t, err, ErrNodeInsert)
	assert.ErrorIs(t, Causes(err)[0], storage.ErrReadOnly)
}

func TestAddN_RecordsOperatorMetric(t *testing.T) {
	engine := setupTestEngine(t, byName)
	tx := beginWrite(t, engine)

	ok := metrics.OperatorCounter.WithLabelValues("add_n", metrics.OutcomeSuccess)
	failed := metrics.OperatorCounter.WithLabelValues("add_n", metrics.OutcomeFailure)
	okBefore, failedBefore := testutil.ToFloat64(ok), testutil.ToFloat64(failed)

	addNode(t, engine, tx, "person", props("name", "Ada"), "by_name")
	_, _ = New(engine, tx).AddN("person", nil, []string{"by_name"}, ids.Nil).First()

	assert.Equal(t, okBefore+1, testutil.ToFloat64(ok))
	assert.Equal(t, failedBefore+1, testutil.ToFloat64(failed))
}

func TestAddE(t *testing.T) {
	engine := setupTestEngine(t)
	tx := beginWrite(t, engine)

	a := addNode(t, engine, tx, "person", props("name", "Ada"))
	b := addNode(t, engine, tx, "person", props("name", "Bob"))

	v, err := New(engine, tx).AddE("knows", props("since", 2020), a.ID, b.ID, ids.Nil).First()
	require.NoError(t, err)
	edge, ok := v.Edge()
	require.True(t, ok)
	assert.Equal(t, a.ID, edge.From)
	assert.Equal(t, b.ID, edge.To)

	stored, err := tx.GetEdge(edge.ID)
	require.NoError(t, err)
	assert.True(t, stored.Equal(edge))

	raw, err := tx.Get(engine.OutTable(), storage.AdjacencyKey(a.ID, edge.ID))
	require.NoError(t, err)
	assert.Equal(t, b.ID.Bytes(), raw)
	raw, err = tx.Get(engine.InTable(), storage.AdjacencyKey(b.ID, edge.ID))
	require.NoError(t, err)
	assert.Equal(t, a.ID.Bytes(), raw)
}

func TestAddE_MissingEndpoint(t *testing.T) {
	engine := setupTestEngine(t)
	tx := beginWrite(t, engine)

	a := addNode(t, engine, tx, "person", nil)
	_, err := New(engine, tx).AddE("knows", nil, a.ID, ids.New(), ids.Nil).First()
	require.ErrorIs(t, err, ErrEdgeInsert)
	assert.Equal(t, "failed to add edge", err.Error())
	causes := Causes(err)
	require.Len(t, causes, 1)
	assert.ErrorIs(t, causes[0], ErrData)

	n, err := tx.Count(engine.EdgeTable())
	require.NoError(t, err)
	assert.Zero(t, n)
}
