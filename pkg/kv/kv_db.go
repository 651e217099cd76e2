package kv

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/lintang-b-s/saferoute/pkg/datastructure"
	"github.com/lintang-b-s/saferoute/pkg/geo"
	"github.com/uber/h3-go/v4"
)

var (
	ErrInvalidKey = errors.New("invalid safety key")
)

const (
	// h3 resolution of the key prefix, ~25 m edge length
	h3Resolution = 11
	batchSize    = 1000
)

// SafetyStore keeps measured safety vectors in badger. A street segment is keyed by
// the h3 cell of its midpoint and its sorted endpoint pair, so the key survives a
// reload of the same network and all segments of a cell share a prefix.
type SafetyStore struct {
	db *badger.DB
}

func NewSafetyStore(db *badger.DB) *SafetyStore {
	return &SafetyStore{db}
}

// OpenSafetyStore opens (or creates) the store in dir. An empty dir gives an in memory store.
func OpenSafetyStore(dir string) (*SafetyStore, error) {
	opts := badger.DefaultOptions(dir).WithLoggingLevel(badger.ERROR)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open safety store %q: %w", dir, err)
	}
	return NewSafetyStore(db), nil
}

// EdgeSafety pairs an edge with the vector to store for it.
type EdgeSafety struct {
	Edge   *datastructure.Edge
	Safety datastructure.SafetyVector
}

// cellOf walks the geometry from the lower node id so both orientations of a street
// land in the same cell.
func cellOf(e *datastructure.Edge) h3.Cell {
	geom := e.Geometry
	if e.U > e.V {
		geom = datastructure.CopyCoordinates(geom)
		datastructure.ReverseCoordinates(geom)
	}
	mid := geo.MidPoint(geom)
	return h3.LatLngToCell(h3.NewLatLng(mid.Lat, mid.Lon), h3Resolution)
}

// Key returns the store key of e: "<h3 cell>|<min node>-<max node>".
func Key(e *datastructure.Edge) []byte {
	a, b := e.U, e.V
	if a > b {
		a, b = b, a
	}
	return []byte(fmt.Sprintf("%s|%d-%d", cellOf(e).String(), a, b))
}

// ParseKey splits a store key into its cell and node pair.
func ParseKey(key []byte) (h3.Cell, datastructure.NodeID, datastructure.NodeID, error) {
	cellStr, pair, ok := strings.Cut(string(key), "|")
	if !ok {
		return 0, 0, 0, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	cellID, err := strconv.ParseUint(cellStr, 16, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("%w: %q: %v", ErrInvalidKey, key, err)
	}
	aStr, bStr, ok := strings.Cut(pair, "-")
	if !ok {
		return 0, 0, 0, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	a, err := strconv.ParseInt(aStr, 10, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("%w: %q: %v", ErrInvalidKey, key, err)
	}
	b, err := strconv.ParseInt(bStr, 10, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("%w: %q: %v", ErrInvalidKey, key, err)
	}
	return h3.Cell(cellID), datastructure.NodeID(a), datastructure.NodeID(b), nil
}

func newRecord(s datastructure.SafetyVector, source string) safetyRecord {
	return safetyRecord{Values: s[:], Source: source, UpdatedAt: time.Now().Unix()}
}

func (k *SafetyStore) PutEdgeSafety(ctx context.Context, e *datastructure.Edge, s datastructure.SafetyVector, source string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.InRange() {
		return fmt.Errorf("%w: %v", datastructure.ErrInvalidSafety, s)
	}
	val, err := encodeRecord(newRecord(s, source))
	if err != nil {
		return err
	}
	return k.db.Update(func(txn *badger.Txn) error {
		return txn.Set(Key(e), val)
	})
}

// BatchPut writes items with badger write batches of batchSize entries.
func (k *SafetyStore) BatchPut(ctx context.Context, items []EdgeSafety, source string) error {
	for start := 0; start < len(items); start += batchSize {
		end := min(start+batchSize, len(items))
		if err := k.saveBatch(ctx, items[start:end], source); err != nil {
			return err
		}
	}
	log.Printf("saving %d edge safety vectors done", len(items))
	return nil
}

func (k *SafetyStore) saveBatch(ctx context.Context, items []EdgeSafety, source string) error {
	batch := k.db.NewWriteBatch()
	defer batch.Cancel()

	for _, item := range items {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if !item.Safety.InRange() {
			return fmt.Errorf("edge %d: %w: %v", item.Edge.ID, datastructure.ErrInvalidSafety, item.Safety)
		}
		val, err := encodeRecord(newRecord(item.Safety, source))
		if err != nil {
			return err
		}
		if err := batch.Set(Key(item.Edge), val); err != nil {
			return err
		}
	}
	if err := batch.Flush(); err != nil {
		log.Printf("error saving edge safety: %v", err)
		return err
	}
	return nil
}

func (k *SafetyStore) get(key []byte) ([]byte, error) {
	var val []byte
	err := k.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	return val, err
}

// Safety implements safety.Provider. A missing key is reported as not found.
func (k *SafetyStore) Safety(ctx context.Context, e *datastructure.Edge) (datastructure.SafetyVector, bool, error) {
	if err := ctx.Err(); err != nil {
		return datastructure.SafetyVector{}, false, err
	}
	val, err := k.get(Key(e))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return datastructure.SafetyVector{}, false, nil
	}
	if err != nil {
		return datastructure.SafetyVector{}, false, err
	}
	rec, err := decodeRecord(val)
	if err != nil {
		return datastructure.SafetyVector{}, false, fmt.Errorf("decode safety of edge %d: %w", e.ID, err)
	}
	return rec.vector(), true, nil
}

// CellRecord is one stored segment inside an h3 cell.
type CellRecord struct {
	U, V   datastructure.NodeID
	Safety datastructure.SafetyVector
	Source string
}

// SafetyInCell lists every stored segment whose midpoint lies in the cell of p,
// using a prefix scan.
func (k *SafetyStore) SafetyInCell(ctx context.Context, p datastructure.Coordinate) ([]CellRecord, error) {
	cell := h3.LatLngToCell(h3.NewLatLng(p.Lat, p.Lon), h3Resolution)
	prefix := []byte(cell.String() + "|")

	out := make([]CellRecord, 0)
	err := k.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			_, a, b, err := ParseKey(item.KeyCopy(nil))
			if err != nil {
				return err
			}
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			rec, err := decodeRecord(val)
			if err != nil {
				return err
			}
			out = append(out, CellRecord{U: a, V: b, Safety: rec.vector(), Source: rec.Source})
		}
		return nil
	})
	return out, err
}

// Count returns the number of stored segments.
func (k *SafetyStore) Count(ctx context.Context) (int, error) {
	n := 0
	err := k.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, err
}

func (k *SafetyStore) Close() error {
	return k.db.Close()
}
