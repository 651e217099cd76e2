package osmparser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"runtime"
	"sort"

	"github.com/k0kubun/go-ansi"
	"github.com/lintang-b-s/saferoute/pkg/datastructure"
	"github.com/lintang-b-s/saferoute/pkg/geo"
	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"github.com/schollz/progressbar/v3"
)

var (
	ErrEmptyNetwork = errors.New("no walkable street in the extract")
)

type NodeType int

const (
	END_NODE NodeType = iota
	BETWEEN_NODE
	JUNCTION_NODE
)

type nodeCoord struct {
	lat float64
	lon float64
}

type walkWay struct {
	id    int64
	nodes []int64
}

type segment struct {
	u, v   int64
	geom   []datastructure.Coordinate
	length float64
}

// OsmParser turns an OpenStreetMap extract into the undirected walk network.
// Ways are split at every node shared with another way, keeping the shape points
// in between as edge geometry.
type OsmParser struct {
	wayNodeMap      map[int64]NodeType
	acceptedNodeMap map[int64]nodeCoord
	ways            []walkWay
	progress        bool
}

func NewOSMParser() *OsmParser {
	return &OsmParser{
		wayNodeMap:      make(map[int64]NodeType),
		acceptedNodeMap: make(map[int64]nodeCoord),
		ways:            make([]walkWay, 0),
	}
}

// WithProgress shows a progress bar on stdout while building the graph.
func (p *OsmParser) WithProgress() *OsmParser {
	p.progress = true
	return p
}

// Parse reads the pbf file twice, ways first and then the coordinates of the nodes
// they reference, and builds the graph. Node ids are the osm node ids.
func (p *OsmParser) Parse(ctx context.Context, mapFile string) (*datastructure.Graph, error) {
	f, err := os.Open(mapFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := osmpbf.New(ctx, f, runtime.GOMAXPROCS(-1))
	scanner.SkipNodes = true
	scanner.SkipRelations = true
	countWays := 0
	for scanner.Scan() {
		way, ok := scanner.Object().(*osm.Way)
		if !ok {
			continue
		}
		if p.AddWay(way) {
			countWays++
			if countWays%50000 == 0 {
				log.Printf("reading openstreetmap ways: %d...", countWays)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		scanner.Close()
		return nil, fmt.Errorf("scan ways of %s: %w", mapFile, err)
	}
	scanner.Close()
	log.Printf("walkable osm ways: %d", countWays)

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	scanner = osmpbf.New(ctx, f, runtime.GOMAXPROCS(-1))
	defer scanner.Close()
	scanner.SkipWays = true
	scanner.SkipRelations = true
	for scanner.Scan() {
		node, ok := scanner.Object().(*osm.Node)
		if !ok {
			continue
		}
		p.AddNode(node)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan nodes of %s: %w", mapFile, err)
	}

	return p.BuildGraph(ctx)
}

// AddWay registers way if it is walkable and reports whether it was accepted.
func (p *OsmParser) AddWay(way *osm.Way) bool {
	if len(way.Nodes) < 2 || !acceptWalkWay(way) {
		return false
	}
	nodes := make([]int64, 0, len(way.Nodes))
	for _, n := range way.Nodes {
		id := int64(n.ID)
		if len(nodes) > 0 && nodes[len(nodes)-1] == id {
			continue
		}
		nodes = append(nodes, id)
	}
	if len(nodes) < 2 {
		return false
	}

	for i, id := range nodes {
		if _, ok := p.wayNodeMap[id]; !ok {
			if i == 0 || i == len(nodes)-1 {
				p.wayNodeMap[id] = END_NODE
			} else {
				p.wayNodeMap[id] = BETWEEN_NODE
			}
		} else {
			p.wayNodeMap[id] = JUNCTION_NODE
		}
	}
	p.ways = append(p.ways, walkWay{id: int64(way.ID), nodes: nodes})
	return true
}

// AddNode keeps the coordinate of node when a walkable way uses it.
func (p *OsmParser) AddNode(node *osm.Node) {
	if _, ok := p.wayNodeMap[int64(node.ID)]; ok {
		p.acceptedNodeMap[int64(node.ID)] = nodeCoord{lat: node.Lat, lon: node.Lon}
	}
}

func (p *OsmParser) isSplitNode(id int64) bool {
	t, ok := p.wayNodeMap[id]
	return ok && t != BETWEEN_NODE
}

// BuildGraph splits the registered ways into street segments and loads them into a
// graph. Self loops are dropped and of several segments between the same pair of
// nodes only the shortest is kept.
func (p *OsmParser) BuildGraph(ctx context.Context) (*datastructure.Graph, error) {
	sort.Slice(p.ways, func(i, j int) bool { return p.ways[i].id < p.ways[j].id })

	var bar *progressbar.ProgressBar
	if p.progress {
		bar = progressbar.NewOptions(len(p.ways),
			progressbar.OptionSetWriter(ansi.NewAnsiStdout()),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionSetWidth(15),
			progressbar.OptionSetDescription("[cyan][1/2][reset] splitting walkable ways ..."),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "[green]=[reset]",
				SaucerHead:    "[green]>[reset]",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}))
	}

	segments := make([]segment, 0, len(p.ways))
	best := make(map[[2]int64]int)
	for _, way := range p.ways {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, seg := range p.splitWay(way) {
			key := pairOf(seg.u, seg.v)
			if idx, ok := best[key]; ok {
				if seg.length < segments[idx].length {
					segments[idx] = seg
				}
				continue
			}
			best[key] = len(segments)
			segments = append(segments, seg)
		}
		if bar != nil {
			bar.Add(1)
		}
	}
	if bar != nil {
		bar.Finish()
		fmt.Println("")
	}
	if len(segments) == 0 {
		return nil, ErrEmptyNetwork
	}

	nodeIDs := make([]int64, 0)
	seen := make(map[int64]struct{})
	for _, seg := range segments {
		for _, id := range [2]int64{seg.u, seg.v} {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				nodeIDs = append(nodeIDs, id)
			}
		}
	}
	sort.Slice(nodeIDs, func(i, j int) bool { return nodeIDs[i] < nodeIDs[j] })

	g := datastructure.NewGraph()
	for _, id := range nodeIDs {
		c := p.acceptedNodeMap[id]
		if err := g.AddNode(datastructure.NodeID(id), datastructure.NewCoordinate(c.lat, c.lon)); err != nil {
			return nil, fmt.Errorf("osm node %d: %w", id, err)
		}
	}
	for _, seg := range segments {
		if _, err := g.AddEdge(datastructure.NodeID(seg.u), datastructure.NodeID(seg.v), seg.geom, seg.length,
			datastructure.SafetyVector{}, false); err != nil {
			return nil, fmt.Errorf("osm segment %d-%d: %w", seg.u, seg.v, err)
		}
	}

	log.Printf("walk network: %d nodes, %d edges", g.NumNodes(), g.NumEdges())
	return g, nil
}

// splitWay cuts way at junctions. Nodes without a coordinate (outside the extract)
// end the current piece.
func (p *OsmParser) splitWay(way walkWay) []segment {
	out := make([]segment, 0, 1)
	piece := make([]int64, 0, len(way.nodes))
	flush := func() {
		if len(piece) > 1 {
			out = append(out, p.pieceSegments(piece)...)
		}
	}

	for i, id := range way.nodes {
		if _, ok := p.acceptedNodeMap[id]; !ok {
			flush()
			piece = piece[:0]
			continue
		}
		piece = append(piece, id)
		if i > 0 && len(piece) > 1 && p.isSplitNode(id) {
			flush()
			piece = []int64{id}
		}
	}
	flush()
	return out
}

// pieceSegments turns one junction to junction piece into segments. A closed piece
// is cut at its thirds so it survives as a triangle instead of a self loop.
func (p *OsmParser) pieceSegments(piece []int64) []segment {
	last := len(piece) - 1
	if piece[0] != piece[last] {
		return []segment{p.newSegment(piece)}
	}
	if len(piece) < 3 {
		return nil
	}
	cuts := []int{0}
	i1, i2 := last/3, 2*last/3
	if i1 < 1 {
		i1 = 1
	}
	cuts = append(cuts, i1)
	if i2 > i1 && i2 < last {
		cuts = append(cuts, i2)
	}
	cuts = append(cuts, last)

	out := make([]segment, 0, len(cuts)-1)
	for k := 0; k+1 < len(cuts); k++ {
		part := piece[cuts[k] : cuts[k+1]+1]
		if part[0] == part[len(part)-1] {
			continue
		}
		out = append(out, p.newSegment(part))
	}
	return out
}

func (p *OsmParser) newSegment(ids []int64) segment {
	geom := make([]datastructure.Coordinate, len(ids))
	for i, id := range ids {
		c := p.acceptedNodeMap[id]
		geom[i] = datastructure.NewCoordinate(c.lat, c.lon)
	}
	return segment{
		u:      ids[0],
		v:      ids[len(ids)-1],
		geom:   geom,
		length: geo.PolylineLength(geom),
	}
}

func pairOf(a, b int64) [2]int64 {
	if a > b {
		a, b = b, a
	}
	return [2]int64{a, b}
}
