package storage

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/kelindar/binary"
	"github.com/klauspost/compress/zstd"
	"github.com/lintang-b-s/saferoute/pkg/datastructure"
)

// WriteSnapshot streams g to w as a zstd frame of the binary snapshot.
func WriteSnapshot(w io.Writer, g *datastructure.Graph) error {
	encoder, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return err
	}
	if err := binary.MarshalTo(newSnapshot(g), encoder); err != nil {
		encoder.Close()
		return err
	}
	return encoder.Close()
}

func ReadSnapshot(r io.Reader) (*datastructure.Graph, error) {
	decoder, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer decoder.Close()

	bb, err := io.ReadAll(decoder)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	var s graphSnapshot
	if err := binary.Unmarshal(bb, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	return s.toGraph()
}

func WriteSnapshotFile(path string, g *datastructure.Graph) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := WriteSnapshot(w, g); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func ReadSnapshotFile(path string) (*datastructure.Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadSnapshot(bufio.NewReader(f))
}
