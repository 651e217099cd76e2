package safety

import (
	"context"
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/lintang-b-s/saferoute/pkg/datastructure"
	"golang.org/x/exp/rand"
)

// Provider supplies the safety vector of a street segment. found is false when the
// provider has no data for the edge.
type Provider interface {
	Safety(ctx context.Context, e *datastructure.Edge) (s datastructure.SafetyVector, found bool, err error)
}

type ProviderFunc func(ctx context.Context, e *datastructure.Edge) (datastructure.SafetyVector, bool, error)

func (f ProviderFunc) Safety(ctx context.Context, e *datastructure.Edge) (datastructure.SafetyVector, bool, error) {
	return f(ctx, e)
}

// RandomProvider generates placeholder safety data. Values depend only on the seed
// and the endpoints of the edge, so concurrent callers get reproducible results.
type RandomProvider struct {
	seed uint64
	min  uint8
}

// NewRandomProvider draws factors in [1,5], or in [0,5] when withUnknown is set.
func NewRandomProvider(seed uint64, withUnknown bool) *RandomProvider {
	min := datastructure.SafetyMin
	if withUnknown {
		min = datastructure.SafetyUnknown
	}
	return &RandomProvider{seed: seed, min: min}
}

func (p *RandomProvider) Safety(ctx context.Context, e *datastructure.Edge) (datastructure.SafetyVector, bool, error) {
	if err := ctx.Err(); err != nil {
		return datastructure.SafetyVector{}, false, err
	}
	rng := rand.New(rand.NewSource(p.seed ^ edgeHash(e)))
	var s datastructure.SafetyVector
	span := int(datastructure.SafetyMax-p.min) + 1
	for i := range s {
		s[i] = p.min + uint8(rng.Intn(span))
	}
	return s, true, nil
}

func edgeHash(e *datastructure.Edge) uint64 {
	a, b := e.U, e.V
	if a > b {
		a, b = b, a
	}
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], uint64(a))
	binary.LittleEndian.PutUint64(buf[8:], uint64(b))
	return xxhash.Sum64(buf[:])
}

// StaticProvider returns the same vector for every edge.
type StaticProvider struct {
	Vector datastructure.SafetyVector
}

func NewStaticProvider(v datastructure.SafetyVector) StaticProvider {
	return StaticProvider{Vector: v}
}

// NeutralProvider fills every factor with 3, the default used when no data exists.
func NeutralProvider() StaticProvider {
	return NewStaticProvider(datastructure.NewSafetyVector(3, 3, 3, 3, 3))
}

func (p StaticProvider) Safety(ctx context.Context, _ *datastructure.Edge) (datastructure.SafetyVector, bool, error) {
	if err := ctx.Err(); err != nil {
		return datastructure.SafetyVector{}, false, err
	}
	return p.Vector, true, nil
}

// ChainProvider asks every provider in turn, the first hit wins.
type ChainProvider []Provider

func NewChainProvider(providers ...Provider) ChainProvider {
	return ChainProvider(providers)
}

func (c ChainProvider) Safety(ctx context.Context, e *datastructure.Edge) (datastructure.SafetyVector, bool, error) {
	for _, p := range c {
		s, ok, err := p.Safety(ctx, e)
		if err != nil {
			return datastructure.SafetyVector{}, false, err
		}
		if ok {
			return s, true, nil
		}
	}
	return datastructure.SafetyVector{}, false, nil
}
