package snap

import (
	"math"
	"testing"

	"github.com/lintang-b-s/saferoute/pkg/datastructure"
	"github.com/lintang-b-s/saferoute/pkg/geo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

func addEdge(t *testing.T, g *datastructure.Graph, u, v datastructure.NodeID, geom []datastructure.Coordinate, safety datastructure.SafetyVector) datastructure.EdgeID {
	t.Helper()
	if geom == nil {
		a, err := g.Node(u)
		require.NoError(t, err)
		b, err := g.Node(v)
		require.NoError(t, err)
		geom = []datastructure.Coordinate{a.Coordinate, b.Coordinate}
	}
	id, err := g.AddEdge(u, v, geom, geo.PolylineLength(geom), safety, !safety.IsUnknown())
	require.NoError(t, err)
	return id
}

/*
	 1 ------- s ------- 2      s is a shape point of edge 1-2 at (0, 0.001)
	 |
	 |
	 3

node 1 (0,0), node 2 (0,0.002), node 3 (-0.002,0)
*/
func buildTestGraph(t *testing.T) *datastructure.Graph {
	t.Helper()
	g := datastructure.NewGraph()
	require.NoError(t, g.AddNode(1, datastructure.NewCoordinate(0, 0)))
	require.NoError(t, g.AddNode(2, datastructure.NewCoordinate(0, 0.002)))
	require.NoError(t, g.AddNode(3, datastructure.NewCoordinate(-0.002, 0)))

	addEdge(t, g, 1, 2, []datastructure.Coordinate{{0, 0}, {0, 0.001}, {0, 0.002}}, datastructure.NewSafetyVector(4, 4, 2, 1, 5))
	addEdge(t, g, 1, 3, nil, datastructure.NewSafetyVector(2, 1, 4, 4, 1))
	return g
}

func newTestSnapper(t *testing.T, g *datastructure.Graph, policy SplitPolicy) *RoadSnapper {
	t.Helper()
	idx, err := NewEdgeIndex(g)
	require.NoError(t, err)
	return NewRoadSnapper(g, idx, DefaultSnapTolerance, policy)
}

func TestNearestEdgeEmptyGraph(t *testing.T) {
	g := datastructure.NewGraph()
	idx, err := NewEdgeIndex(g)
	require.NoError(t, err)

	_, err = idx.NearestEdge(datastructure.NewCoordinate(0, 0))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = idx.NearestNode(datastructure.NewCoordinate(0, 0))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNearestEdge(t *testing.T) {
	g := buildTestGraph(t)
	idx, err := NewEdgeIndex(g)
	require.NoError(t, err)

	cases := []struct {
		name  string
		point datastructure.Coordinate
		u, v  datastructure.NodeID
	}{
		{"near 1-2", datastructure.NewCoordinate(0.0002, 0.0015), 1, 2},
		{"near 1-3", datastructure.NewCoordinate(-0.0015, -0.0001), 1, 3},
		{"far outside the bounding box", datastructure.NewCoordinate(10, 10), 1, 2},
		{"other side of the globe", datastructure.NewCoordinate(-10, -170), 1, 3},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			hit, err := idx.NearestEdge(c.point)
			require.NoError(t, err)
			assert.Equal(t, c.u, hit.U)
			assert.Equal(t, c.v, hit.V)
			assert.InDelta(t, geo.DistanceToPolyline(c.point, hit.Geometry), hit.Distance, 1e-9)
		})
	}
}

/*
	1 ----------- 2     lat  0.001
	      q             lat  0
	10 ---------- 11    lat -0.001
*/
func TestNearestEdgeTieBreak(t *testing.T) {
	g := datastructure.NewGraph()
	require.NoError(t, g.AddNode(10, datastructure.NewCoordinate(-0.001, 0)))
	require.NoError(t, g.AddNode(11, datastructure.NewCoordinate(-0.001, 0.002)))
	require.NoError(t, g.AddNode(1, datastructure.NewCoordinate(0.001, 0)))
	require.NoError(t, g.AddNode(2, datastructure.NewCoordinate(0.001, 0.002)))
	addEdge(t, g, 11, 10, nil, datastructure.SafetyVector{})
	addEdge(t, g, 2, 1, nil, datastructure.SafetyVector{})

	idx, err := NewEdgeIndex(g)
	require.NoError(t, err)
	hit, err := idx.NearestEdge(datastructure.NewCoordinate(0, 0.001))
	require.NoError(t, err)
	assert.ElementsMatch(t, []datastructure.NodeID{1, 2}, []datastructure.NodeID{hit.U, hit.V})
}

func TestNearestEdgeMatchesLinearScan(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	g := datastructure.NewGraph()
	const n = 400
	for i := 0; i < n; i++ {
		c := datastructure.NewCoordinate(-7.55+rng.Float64()*0.05, 110.77+rng.Float64()*0.05)
		require.NoError(t, g.AddNode(datastructure.NodeID(i), c))
	}
	for i := 0; i < 2*n; i++ {
		u := datastructure.NodeID(rng.Intn(n))
		v := datastructure.NodeID(rng.Intn(n))
		if _, ok := g.EdgeBetween(u, v); ok || u == v {
			continue
		}
		addEdge(t, g, u, v, nil, datastructure.SafetyVector{})
	}

	idx, err := NewEdgeIndex(g)
	require.NoError(t, err)

	for q := 0; q < 200; q++ {
		p := datastructure.NewCoordinate(-7.56+rng.Float64()*0.07, 110.76+rng.Float64()*0.07)
		hit, err := idx.NearestEdge(p)
		require.NoError(t, err)

		best := math.Inf(1)
		for _, e := range g.Edges() {
			best = math.Min(best, geo.DistanceToPolyline(p, e.Geometry))
		}
		assert.InDelta(t, best, hit.Distance, 1e-9)

		node, err := idx.NearestNode(p)
		require.NoError(t, err)
		bestNode := math.Inf(1)
		for _, nd := range g.Nodes() {
			bestNode = math.Min(bestNode, geo.HaversineDistance(p, nd.Coordinate))
		}
		assert.InDelta(t, bestNode, node.Distance, 1e-9)
	}
}

func TestInsertPointSplitsEdge(t *testing.T) {
	g := buildTestGraph(t)
	rs := newTestSnapper(t, g, SplitUnknown)
	parent, _ := g.EdgeBetween(1, 2)
	parentGeom := datastructure.CopyCoordinates(parent.Geometry)
	parentLen := parent.Length

	res, err := rs.InsertPoint(datastructure.NewCoordinate(0.0001, 0.0015))
	require.NoError(t, err)
	assert.True(t, res.Inserted)
	assert.Equal(t, parent.ID, res.Edge)
	assert.Equal(t, datastructure.NodeID(4), res.Node)
	assert.InDelta(t, 11.12, res.Distance, 0.01)

	_, ok := g.EdgeBetween(1, 2)
	assert.False(t, ok)
	e1, ok := g.EdgeBetween(1, res.Node)
	require.True(t, ok)
	e2, ok := g.EdgeBetween(res.Node, 2)
	require.True(t, ok)

	// geometries concatenate to the parent, the split point appears once
	joined := append(datastructure.CopyCoordinates(e1.Geometry), e2.Geometry[1:]...)
	assert.Equal(t, []datastructure.Coordinate{parentGeom[0], parentGeom[1], e1.Geometry[2], parentGeom[2]}, joined)
	assert.InDelta(t, parentLen, e1.Length+e2.Length, 1e-9)
	assert.InDelta(t, parentLen*0.75, e1.Length, 1e-3)

	assert.False(t, e1.SafetySet)
	assert.True(t, e1.Safety.IsUnknown())
	assert.False(t, e2.SafetySet)

	assert.Equal(t, 4, g.NumNodes())
	assert.Equal(t, 3, g.NumEdges())
	require.NoError(t, g.CheckIntegrity())

	// the index follows the split without a rebuild
	assert.False(t, rs.Index().Stale())
	hit, err := rs.NearestEdge(datastructure.NewCoordinate(0.0001, 0.0019))
	require.NoError(t, err)
	assert.Equal(t, e2.ID, hit.EdgeID)
}

func TestInsertPointAtShapePoint(t *testing.T) {
	g := buildTestGraph(t)
	rs := newTestSnapper(t, g, SplitInherit)
	parent, _ := g.EdgeBetween(1, 2)

	res, err := rs.InsertPoint(datastructure.NewCoordinate(0.0003, 0.001))
	require.NoError(t, err)
	require.True(t, res.Inserted)

	node, err := g.Node(res.Node)
	require.NoError(t, err)
	assert.Equal(t, datastructure.NewCoordinate(0, 0.001), node.Coordinate)

	e1, err := g.Edge(res.Split.First)
	require.NoError(t, err)
	e2, err := g.Edge(res.Split.Second)
	require.NoError(t, err)
	assert.Equal(t, []datastructure.Coordinate{{0, 0}, {0, 0.001}}, e1.Geometry)
	assert.Equal(t, []datastructure.Coordinate{{0, 0.001}, {0, 0.002}}, e2.Geometry)

	assert.Equal(t, parent.Safety, e1.Safety)
	assert.Equal(t, parent.Safety, e2.Safety)
	assert.True(t, e1.SafetySet)
	assert.True(t, e2.SafetySet)
	require.NoError(t, g.CheckIntegrity())
}

func TestInsertPointSnapsToEndpoint(t *testing.T) {
	g := buildTestGraph(t)
	rs := newTestSnapper(t, g, SplitUnknown)

	cases := []struct {
		name  string
		point datastructure.Coordinate
		want  datastructure.NodeID
	}{
		// 0.000005 deg is ~0.56 m along the edge
		{"close to 2", datastructure.NewCoordinate(0.0003, 0.001995), 2},
		{"beyond 2", datastructure.NewCoordinate(0, 0.0025), 2},
		{"close to 3", datastructure.NewCoordinate(-0.002003, 0.0002), 3},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			res, err := rs.InsertPoint(c.point)
			require.NoError(t, err)
			assert.False(t, res.Inserted)
			assert.Equal(t, c.want, res.Node)
			assert.Equal(t, 3, g.NumNodes())
			assert.Equal(t, 2, g.NumEdges())
		})
	}
}

func TestInsertPointDegenerate(t *testing.T) {
	g := datastructure.NewGraph()
	require.NoError(t, g.AddNode(1, datastructure.NewCoordinate(1, 1)))
	require.NoError(t, g.AddNode(2, datastructure.NewCoordinate(1, 1)))
	addEdge(t, g, 1, 2, nil, datastructure.SafetyVector{})
	rs := newTestSnapper(t, g, SplitUnknown)

	_, err := rs.InsertPoint(datastructure.NewCoordinate(1.001, 1))
	assert.ErrorIs(t, err, ErrDegenerateGeometry)
	assert.Equal(t, 1, g.NumEdges())

	res, err := rs.InsertPointOrNearestEndpoint(datastructure.NewCoordinate(1.001, 1))
	require.NoError(t, err)
	assert.Equal(t, datastructure.NodeID(1), res.Node)
	assert.False(t, res.Inserted)
}

func TestInsertPointRepeated(t *testing.T) {
	g := buildTestGraph(t)
	rs := newTestSnapper(t, g, SplitUnknown)

	points := []datastructure.Coordinate{
		{0.0001, 0.0005}, {0.0001, 0.0015}, {-0.0005, 0.0001}, {-0.0015, -0.0001}, {0.00005, 0.0012},
	}
	seen := map[datastructure.NodeID]bool{}
	for _, p := range points {
		res, err := rs.InsertPoint(p)
		require.NoError(t, err)
		require.True(t, res.Inserted)
		assert.False(t, seen[res.Node])
		seen[res.Node] = true
		require.NoError(t, g.CheckIntegrity())
	}
	assert.Equal(t, 3+len(points), g.NumNodes())
	assert.Equal(t, 2+len(points), g.NumEdges())
	assert.False(t, rs.Index().Stale())
	assert.Equal(t, g.NumEdges(), rs.Index().Size())
}

func TestForkLeavesBaseUntouched(t *testing.T) {
	g := buildTestGraph(t)
	rs := newTestSnapper(t, g, SplitUnknown)
	parent, _ := g.EdgeBetween(1, 2)

	clone := g.Clone()
	fork := rs.Fork(clone)
	res, err := fork.InsertPoint(datastructure.NewCoordinate(0.0001, 0.0015))
	require.NoError(t, err)
	require.True(t, res.Inserted)

	// base graph and index unchanged
	assert.Equal(t, 3, g.NumNodes())
	assert.Equal(t, 2, g.NumEdges())
	hit, err := rs.NearestEdge(datastructure.NewCoordinate(0.0001, 0.0015))
	require.NoError(t, err)
	assert.Equal(t, parent.ID, hit.EdgeID)

	// the fork sees the children, not the parent
	hit, err = fork.NearestEdge(datastructure.NewCoordinate(0.0001, 0.0019))
	require.NoError(t, err)
	assert.Equal(t, res.Split.Second, hit.EdgeID)
	hit, err = fork.NearestEdge(datastructure.NewCoordinate(0.0001, 0.0005))
	require.NoError(t, err)
	assert.Equal(t, res.Split.First, hit.EdgeID)

	// second insertion in the fork splits a child edge
	res2, err := fork.InsertPoint(datastructure.NewCoordinate(-0.0001, 0.0018))
	require.NoError(t, err)
	assert.Equal(t, res.Split.Second, res2.Edge)
	require.NoError(t, clone.CheckIntegrity())
	assert.Equal(t, clone.NumEdges(), fork.Index().Size())

	node, err := fork.NearestNode(datastructure.NewCoordinate(0.00001, 0.0015))
	require.NoError(t, err)
	assert.Equal(t, res.Node, node.NodeID)
}

func TestParseSplitPolicy(t *testing.T) {
	p, err := ParseSplitPolicy("inherit")
	require.NoError(t, err)
	assert.Equal(t, SplitInherit, p)
	assert.Equal(t, "inherit", p.String())

	p, err = ParseSplitPolicy("")
	require.NoError(t, err)
	assert.Equal(t, SplitUnknown, p)

	_, err = ParseSplitPolicy("copy")
	assert.Error(t, err)
}
