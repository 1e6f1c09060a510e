package scaling

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreSaveAndRead(t *testing.T) {
	ctx := context.Background()
	st := createTestStore(t)

	sw := DefaultSweep(Strong)
	sw.Program = "omp-dot"
	id, err := st.BeginSweep(ctx, sw)
	require.NoError(t, err)
	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())

	require.NoError(t, st.SaveTag(ctx, id, TagResult{Type: Strong, Tag: "mpi-2-100", Measurements: []Measurement{
		{Workers: 4, Size: 100, Seconds: 0.5},
		{Workers: 1, Size: 100, Seconds: 2},
	}}))
	require.NoError(t, st.SaveTag(ctx, id, TagResult{Type: Weak, Tag: "mpi-2-100", Measurements: []Measurement{
		{Workers: 1, Size: 100, Seconds: 1},
	}}))

	all, err := st.Results(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, Strong, all[0].Type)
	assert.Equal(t, []Measurement{
		{Workers: 1, Size: 100, Seconds: 2},
		{Workers: 4, Size: 100, Seconds: 0.5},
	}, all[0].Measurements)

	weak, err := st.Results(ctx, Weak)
	require.NoError(t, err)
	require.Len(t, weak, 1)
	assert.Equal(t, "mpi-2-100", weak[0].Tag)
}

func TestStoreMergesWorkerCounts(t *testing.T) {
	ctx := context.Background()
	st := createTestStore(t)
	sw := DefaultSweep(Strong)
	sw.Program = "p"

	first, err := st.BeginSweep(ctx, sw)
	require.NoError(t, err)
	require.NoError(t, st.SaveTag(ctx, first, TagResult{Type: Strong, Tag: "mpi-2-10", Measurements: []Measurement{
		{Workers: 1, Size: 10, Seconds: 3},
		{Workers: 2, Size: 10, Seconds: 2},
	}}))
	require.NoError(t, st.SaveTag(ctx, first, TagResult{Type: Strong, Tag: "mpi-2-20", Measurements: []Measurement{
		{Workers: 1, Size: 20, Seconds: 6},
	}}))

	second, err := st.BeginSweep(ctx, sw)
	require.NoError(t, err)
	require.NoError(t, st.SaveTag(ctx, second, TagResult{Type: Strong, Tag: "mpi-2-10", Measurements: []Measurement{
		{Workers: 2, Size: 10, Seconds: 1.5},
		{Workers: 4, Size: 10, Seconds: 1},
	}}))

	got, err := st.Results(ctx, Strong)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []Measurement{
		{Workers: 1, Size: 10, Seconds: 3},
		{Workers: 2, Size: 10, Seconds: 1.5},
		{Workers: 4, Size: 10, Seconds: 1},
	}, got[0].Measurements)
	assert.Equal(t, "mpi-2-20", got[1].Tag)

	n, err := st.SweepCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestStoreReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "results.db")
	st, err := OpenStore(path)
	require.NoError(t, err)
	sw := DefaultSweep(Strong)
	sw.Program = "p"
	id, err := st.BeginSweep(ctx, sw)
	require.NoError(t, err)
	require.NoError(t, st.SaveTag(ctx, id, TagResult{Type: Strong, Tag: "mpi-2-1", Measurements: []Measurement{{Workers: 1, Size: 1, Seconds: 1}}}))
	require.NoError(t, st.Close())

	st, err = OpenStore(path)
	require.NoError(t, err)
	defer st.Close()
	got, err := st.Results(ctx, "")
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestStoreRejectsUnknownSweep(t *testing.T) {
	st := createTestStore(t)
	err := st.SaveTag(context.Background(), "no-such-sweep", TagResult{Type: Strong, Tag: "t",
		Measurements: []Measurement{{Workers: 1, Seconds: 1}}})
	assert.Error(t, err)
}
