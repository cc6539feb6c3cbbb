// Package snapshot persists and loads Materializer projections so a
// process start can begin from a saved projection. It holds only the
// on-disk Store: it does not publish a Stop fence, replay the log from
// the earliest offset, or wait for a matching Stop. cmd/archiver saves
// its live projection here on shutdown, under the tag "shutdown" with
// offset 0.
//
// The on-disk format here is adapted from the teacher's
// internal/events/log.go append-only event log: gob-encoded records,
// CRC32-checksummed, buffered through bufio. That file was a local
// write-ahead log for a single-process matching engine; EISME's
// log of record is the external broker (see internal/ingest), so
// there is nothing for a local WAL to do — but the same durable
// encode/checksum/flush shape is exactly what a snapshot file needs,
// so it is repurposed here rather than rewritten from scratch.
package snapshot

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"hash/crc32"
	"os"
	"sync"

	"github.com/twilight-project/relayer-eisme/internal/materialize"
)

// record is the on-disk format for a persisted projection.
type record struct {
	Tag      string
	Offset   int64
	State    materialize.Snapshot
	Checksum uint32
}

// Store persists and loads Materializer projections keyed by the
// snapshot fence tag (original_source's "snapshot-start-<epoch>").
type Store struct {
	mu   sync.Mutex
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Save writes the projection to disk, replacing any prior snapshot at
// this path. A temp-file-then-rename pattern avoids truncating the
// previous snapshot on a crash mid-write.
func (s *Store) Save(tag string, offset int64, state materialize.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tmpPath := s.path + ".tmp"
	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("snapshot: open temp file: %w", err)
	}

	rec := record{Tag: tag, Offset: offset, State: state}
	rec.Checksum = crc32.ChecksumIEEE([]byte(fmt.Sprintf("%v", state)))

	writer := bufio.NewWriter(file)
	if err := gob.NewEncoder(writer).Encode(rec); err != nil {
		file.Close()
		return fmt.Errorf("snapshot: encode: %w", err)
	}
	if err := writer.Flush(); err != nil {
		file.Close()
		return fmt.Errorf("snapshot: flush: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("snapshot: fsync: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("snapshot: close: %w", err)
	}
	return os.Rename(tmpPath, s.path)
}

// Load reads the persisted projection, if any. ok is false when no
// snapshot file exists yet — the caller should fall back to a full
// replay from Earliest.
func (s *Store) Load() (state materialize.Snapshot, offset int64, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, openErr := os.Open(s.path)
	if openErr != nil {
		if os.IsNotExist(openErr) {
			return materialize.Snapshot{}, 0, false, nil
		}
		return materialize.Snapshot{}, 0, false, fmt.Errorf("snapshot: open: %w", openErr)
	}
	defer file.Close()

	var rec record
	if decodeErr := gob.NewDecoder(file).Decode(&rec); decodeErr != nil {
		return materialize.Snapshot{}, 0, false, fmt.Errorf("snapshot: decode: %w", decodeErr)
	}

	expected := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%v", rec.State)))
	if expected != rec.Checksum {
		return materialize.Snapshot{}, 0, false, fmt.Errorf("snapshot: checksum mismatch for tag %q", rec.Tag)
	}
	return rec.State, rec.Offset, true, nil
}
