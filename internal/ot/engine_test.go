package ot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/collabtext/realtime-docs/internal/document"
)

type memStore struct{ rec *document.Record }

func (m *memStore) GetByID(_ context.Context, id string) (*document.Record, error) {
	if m.rec == nil || m.rec.ID != id {
		return nil, errNotFound{}
	}
	cp := *m.rec
	cp.Shares = map[string]document.Role{}
	for k, v := range m.rec.Shares {
		cp.Shares[k] = v
	}
	cp.History = append([]document.VersionEntry(nil), m.rec.History...)
	return &cp, nil
}

func (m *memStore) Save(_ context.Context, rec *document.Record) error {
	cp := *rec
	m.rec = &cp
	return nil
}

type errNotFound struct{}

func (errNotFound) Error() string { return "not found" }

func newStore(id, content string) *memStore {
	return &memStore{rec: &document.Record{ID: id, Content: content, Version: 1, Owner: "u0"}}
}

func TestTransformIdentity_P3(t *testing.T) {
	op := NewInsert(3, "x", 1)
	require.Equal(t, op, Transform(op, Noop()))
}

func TestScenarioS1_ConcurrentInsertsSamePosition(t *testing.T) {
	ctx := context.Background()
	st := newStore("d1", "AC")
	eng := NewEngine(st, nil)

	res1, err := eng.ProcessOperation(ctx, "d1", NewInsert(1, "B", 1), "u1")
	require.NoError(t, err)
	require.Equal(t, uint64(2), res1.Version)
	require.Equal(t, "ABC", st.rec.Content)

	res2, err := eng.ProcessOperation(ctx, "d1", NewInsert(1, "X", 1), "u2")
	require.NoError(t, err)
	require.Equal(t, uint64(3), res2.Version)
	require.Equal(t, "ABXC", st.rec.Content)
	require.Equal(t, uint32(2), res2.Transformed.Position)
}

func TestScenarioS2_InsertVsDeleteOverlapShift(t *testing.T) {
	ctx := context.Background()
	st := newStore("d2", "HELLO")
	eng := NewEngine(st, nil)

	res1, err := eng.ProcessOperation(ctx, "d2", NewDelete(1, 3, 1), "u1")
	require.NoError(t, err)
	require.Equal(t, uint64(2), res1.Version)
	require.Equal(t, "HO", st.rec.Content)

	res2, err := eng.ProcessOperation(ctx, "d2", NewInsert(4, "X", 1), "u2")
	require.NoError(t, err)
	require.Equal(t, uint64(3), res2.Version)
	require.Equal(t, "HXO", st.rec.Content)
	require.Equal(t, uint32(1), res2.Transformed.Position)
}

func TestScenarioS3_OverlappingDeletesCollapseToNoop(t *testing.T) {
	ctx := context.Background()
	st := newStore("d3", "ABCDE")
	eng := NewEngine(st, nil)

	res1, err := eng.ProcessOperation(ctx, "d3", NewDelete(1, 3, 1), "u1")
	require.NoError(t, err)
	require.Equal(t, uint64(2), res1.Version)
	require.Equal(t, "AE", st.rec.Content)

	res2, err := eng.ProcessOperation(ctx, "d3", NewDelete(2, 2, 1), "u2")
	require.NoError(t, err)
	require.Equal(t, uint64(2), res2.Version, "version must not advance for a noop")
	require.True(t, res2.Transformed.IsNoop())
	require.Equal(t, "AE", st.rec.Content)
}

func TestScenarioS4_StaleBaseVersionFoldsAcrossBuffer(t *testing.T) {
	ctx := context.Background()
	st := newStore("d4", "0123456789")
	eng := NewEngine(st, nil)

	// Build up versions 2..9 with no-op-safe inserts at the end.
	for i := 0; i < 8; i++ {
		_, err := eng.ProcessOperation(ctx, "d4", NewInsert(uint32(Len(st.rec.Content)), "z", st.rec.Version), "sys")
		require.NoError(t, err)
	}
	require.Equal(t, uint64(9), st.rec.Version)

	// One more so current version is 10 and buffer holds versions 2..10.
	_, err := eng.ProcessOperation(ctx, "d4", NewInsert(0, "-", 9), "sys")
	require.NoError(t, err)
	require.Equal(t, uint64(10), st.rec.Version)

	res, err := eng.ProcessOperation(ctx, "d4", NewInsert(0, "Q", 7), "late")
	require.NoError(t, err)
	require.Equal(t, uint64(11), res.Version)
}

func TestInvariantI3_RejectsFutureBaseVersion(t *testing.T) {
	ctx := context.Background()
	st := newStore("d5", "abc")
	eng := NewEngine(st, nil)

	_, err := eng.ProcessOperation(ctx, "d5", NewInsert(0, "x", 99), "u1")
	require.Error(t, err)
}

func TestApply_ClampsOutOfRangePositions(t *testing.T) {
	require.Equal(t, "abcZ", Apply("abc", NewInsert(999, "Z", 1)))
	require.Equal(t, "a", Apply("abc", NewDelete(1, 999, 1)))
}
