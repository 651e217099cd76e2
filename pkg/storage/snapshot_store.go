package storage

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/kelindar/binary"
	"github.com/lintang-b-s/saferoute/pkg/datastructure"
	bolt "go.etcd.io/bbolt"
)

var (
	ErrSnapshotNotFound = errors.New("graph snapshot not found")
)

// SnapshotInfo describes one saved graph.
type SnapshotInfo struct {
	Name    string `json:"name"`
	Nodes   int    `json:"nodes"`
	Edges   int    `json:"edges"`
	Bytes   int    `json:"bytes"`
	SavedAt int64  `json:"saved_at"`
}

// SnapshotStore keeps named graph snapshots in a bbolt file so a preprocessed
// network can be reloaded without parsing the extract again.
type SnapshotStore struct {
	db *bolt.DB
}

func OpenSnapshotStore(path string) (*SnapshotStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open snapshot store %q: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(SNAPSHOT_BUCKET)); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists([]byte(SNAPSHOT_META))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &SnapshotStore{db: db}, nil
}

func (s *SnapshotStore) Save(name string, g *datastructure.Graph) (SnapshotInfo, error) {
	if name == "" {
		return SnapshotInfo{}, errors.New("snapshot name is empty")
	}
	bb, err := EncodeGraph(g)
	if err != nil {
		return SnapshotInfo{}, err
	}
	info := SnapshotInfo{
		Name:    name,
		Nodes:   g.NumNodes(),
		Edges:   g.NumEdges(),
		Bytes:   len(bb),
		SavedAt: time.Now().Unix(),
	}
	meta, err := binary.Marshal(info)
	if err != nil {
		return SnapshotInfo{}, err
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket([]byte(SNAPSHOT_BUCKET)).Put([]byte(name), bb); err != nil {
			return err
		}
		return tx.Bucket([]byte(SNAPSHOT_META)).Put([]byte(name), meta)
	})
	if err != nil {
		return SnapshotInfo{}, err
	}
	log.Printf("saved graph snapshot %q: %d nodes, %d edges, %d bytes", name, info.Nodes, info.Edges, info.Bytes)
	return info, nil
}

func (s *SnapshotStore) Load(name string) (*datastructure.Graph, error) {
	var bb []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(SNAPSHOT_BUCKET)).Get([]byte(name))
		if v == nil {
			return fmt.Errorf("%w: %q", ErrSnapshotNotFound, name)
		}
		// v is only valid inside the transaction
		bb = make([]byte, len(v))
		copy(bb, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return DecodeGraph(bb)
}

// List returns the saved snapshots ordered by name.
func (s *SnapshotStore) List() ([]SnapshotInfo, error) {
	out := make([]SnapshotInfo, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(SNAPSHOT_META)).ForEach(func(k, v []byte) error {
			var info SnapshotInfo
			if err := binary.Unmarshal(v, &info); err != nil {
				return fmt.Errorf("%w: meta of %q: %v", ErrCorruptSnapshot, k, err)
			}
			out = append(out, info)
			return nil
		})
	})
	return out, err
}

func (s *SnapshotStore) Delete(name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(SNAPSHOT_BUCKET))
		if b.Get([]byte(name)) == nil {
			return fmt.Errorf("%w: %q", ErrSnapshotNotFound, name)
		}
		if err := b.Delete([]byte(name)); err != nil {
			return err
		}
		return tx.Bucket([]byte(SNAPSHOT_META)).Delete([]byte(name))
	})
}

func (s *SnapshotStore) Close() error {
	return s.db.Close()
}
