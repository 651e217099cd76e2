package storage

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/lintang-b-s/saferoute/pkg/datastructure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

/*
	101 ---- 205 ---- 333
	          |
	         400

205-333 has a shape point, 205-400 has no safety data.
*/
func newTestGraph(t *testing.T) *datastructure.Graph {
	t.Helper()
	g := datastructure.NewGraph()
	require.NoError(t, g.AddNode(101, datastructure.NewCoordinate(40.4168, -3.7038)))
	require.NoError(t, g.AddNode(205, datastructure.NewCoordinate(40.4168, -3.7028)))
	require.NoError(t, g.AddNode(333, datastructure.NewCoordinate(40.4168, -3.7018)))
	require.NoError(t, g.AddNode(400, datastructure.NewCoordinate(40.4160, -3.7028)))

	_, err := g.AddEdge(101, 205, nil, 84.6, datastructure.NewSafetyVector(5, 4, 1, 0, 3), true)
	require.NoError(t, err)
	_, err = g.AddEdge(205, 333, []datastructure.Coordinate{
		{Lat: 40.4168, Lon: -3.7028}, {Lat: 40.4170, Lon: -3.7023}, {Lat: 40.4168, Lon: -3.7018},
	}, 90.25, datastructure.NewSafetyVector(1, 1, 5, 5, 1), true)
	require.NoError(t, err)
	_, err = g.AddEdge(205, 400, nil, 88.9, datastructure.SafetyVector{}, false)
	require.NoError(t, err)
	return g
}

func assertSameGraph(t *testing.T, want, got *datastructure.Graph) {
	t.Helper()
	assert.Equal(t, want.Nodes(), got.Nodes())
	require.Equal(t, want.NumEdges(), got.NumEdges())
	for i, e := range want.Edges() {
		o := got.Edges()[i]
		assert.Equal(t, e.U, o.U)
		assert.Equal(t, e.V, o.V)
		assert.Equal(t, e.Geometry, o.Geometry)
		assert.Equal(t, e.Length, o.Length)
		assert.Equal(t, e.Safety, o.Safety)
		assert.Equal(t, e.SafetySet, o.SafetySet)
	}
	require.NoError(t, got.CheckIntegrity())
}

func TestEncodeDecodeGraph(t *testing.T) {
	g := newTestGraph(t)
	bb, err := EncodeGraph(g)
	require.NoError(t, err)

	got, err := DecodeGraph(bb)
	require.NoError(t, err)
	assertSameGraph(t, g, got)

	// new nodes continue after the largest loaded id
	id, err := got.NewNode(datastructure.NewCoordinate(40.4, -3.7))
	require.NoError(t, err)
	assert.Equal(t, datastructure.NodeID(401), id)

	_, err = DecodeGraph([]byte("definitely not zstd"))
	assert.ErrorIs(t, err, ErrCorruptSnapshot)
}

func TestDecodeGraphCompactsRemovedEdges(t *testing.T) {
	g := newTestGraph(t)
	require.NoError(t, g.RemoveEdge(0))

	bb, err := EncodeGraph(g)
	require.NoError(t, err)
	got, err := DecodeGraph(bb)
	require.NoError(t, err)
	assert.Equal(t, 2, got.NumEdges())
	e, err := got.Edge(0)
	require.NoError(t, err)
	assert.Equal(t, datastructure.NodeID(205), e.U)
	assert.Equal(t, datastructure.NodeID(333), e.V)
}

func TestSnapshotStore(t *testing.T) {
	st, err := OpenSnapshotStore(filepath.Join(t.TempDir(), DB_FILE_NAME))
	require.NoError(t, err)
	defer st.Close()

	g := newTestGraph(t)
	info, err := st.Save("madrid-centro", g)
	require.NoError(t, err)
	assert.Equal(t, 4, info.Nodes)
	assert.Equal(t, 3, info.Edges)
	assert.Greater(t, info.Bytes, 0)

	_, err = st.Save("", g)
	assert.Error(t, err)

	got, err := st.Load("madrid-centro")
	require.NoError(t, err)
	assertSameGraph(t, g, got)

	_, err = st.Save("alpha", g)
	require.NoError(t, err)
	list, err := st.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "alpha", list[0].Name)
	assert.Equal(t, "madrid-centro", list[1].Name)

	_, err = st.Load("nope")
	assert.ErrorIs(t, err, ErrSnapshotNotFound)

	require.NoError(t, st.Delete("alpha"))
	assert.ErrorIs(t, st.Delete("alpha"), ErrSnapshotNotFound)
	list, err = st.List()
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSnapshotFile(t *testing.T) {
	g := newTestGraph(t)
	path := filepath.Join(t.TempDir(), "walk"+SNAPSHOT_FILE_EXT)
	require.NoError(t, WriteSnapshotFile(path, g))

	got, err := ReadSnapshotFile(path)
	require.NoError(t, err)
	assertSameGraph(t, g, got)

	var buf bytes.Buffer
	require.NoError(t, WriteSnapshot(&buf, g))
	got, err = ReadSnapshot(&buf)
	require.NoError(t, err)
	assertSameGraph(t, g, got)

	_, err = ReadSnapshot(bytes.NewReader([]byte("garbage")))
	assert.Error(t, err)
}
