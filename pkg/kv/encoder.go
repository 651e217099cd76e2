package kv

import (
	"fmt"

	"github.com/kelindar/binary"
	"github.com/lintang-b-s/saferoute/pkg/datastructure"
)

// safetyRecord is the value stored for one street segment.
type safetyRecord struct {
	Values    []uint8
	Source    string
	UpdatedAt int64 // unix seconds
}

func encodeRecord(r safetyRecord) ([]byte, error) {
	return binary.Marshal(r)
}

func decodeRecord(bb []byte) (safetyRecord, error) {
	var r safetyRecord
	if err := binary.Unmarshal(bb, &r); err != nil {
		return r, err
	}
	if len(r.Values) != datastructure.NumSafetyFactors {
		return r, fmt.Errorf("safety record has %d values", len(r.Values))
	}
	return r, nil
}

func (r safetyRecord) vector() datastructure.SafetyVector {
	var s datastructure.SafetyVector
	copy(s[:], r.Values)
	return s
}
