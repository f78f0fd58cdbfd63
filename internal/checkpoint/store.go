// Package checkpoint persists collected ticker payloads so an interrupted
// collection can resume without refetching.
//
// The store is an append-only stream of framed records plus an optional
// snapshot. Each frame is a big-endian uint32 payload length, a CRC-32 of
// the payload, and the gob-encoded record. A snapshot holds the full
// working set and the stream offset it covers, so loading replays only the
// frames written after it.
package checkpoint

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/epeers/netnet/internal/models"
)

const (
	streamFile   = "checkpoint.stream"
	snapshotFile = "checkpoint.snapshot"

	snapshotVersion = 1
	maxFrameSize    = 256 << 20
)

var errCorruptFrame = errors.New("corrupt checkpoint frame")

// entry is one ticker's record in the stream or the snapshot.
type entry struct {
	Ticker  models.Ticker
	Payload models.TickerPayload
}

type snapshot struct {
	Version      int
	StreamOffset int64
	Entries      []entry
}

// Store is the on-disk checkpoint. All writes go through a single mutex.
type Store struct {
	dir string

	mu     sync.Mutex
	stream *os.File
}

// Open prepares a store rooted at dir, creating the directory if needed.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the directory the store writes to.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) streamPath() string   { return filepath.Join(s.dir, streamFile) }
func (s *Store) snapshotPath() string { return filepath.Join(s.dir, snapshotFile) }

// Close releases the stream file handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return nil
	}
	err := s.stream.Close()
	s.stream = nil
	return err
}

// Load rebuilds the working set from the snapshot, if any, plus the stream
// frames written after it. A torn or corrupt tail is cut off.
func (s *Store) Load() (*Dataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ds := NewDataset()
	var offset int64
	fromSnapshot := 0

	snap, err := s.readSnapshot()
	switch {
	case err == nil && snap != nil:
		size, statErr := fileSize(s.streamPath())
		if statErr != nil {
			return nil, statErr
		}
		if snap.StreamOffset <= size {
			for _, e := range snap.Entries {
				ds.Put(e.Ticker, e.Payload)
			}
			offset = snap.StreamOffset
			fromSnapshot = len(snap.Entries)
		} else {
			log.Warnf("Checkpoint snapshot covers %d bytes but stream has %d, replaying stream", snap.StreamOffset, size)
		}
	case err != nil:
		log.Warnf("Ignoring unreadable checkpoint snapshot: %v", err)
	}

	replayed, err := s.replayFrom(offset, ds)
	if err != nil {
		return nil, err
	}
	log.Infof("Loaded checkpoint: %d tickers (%d from snapshot, %d frames replayed)", ds.Len(), fromSnapshot, replayed)
	return ds, nil
}

// Replay rebuilds the working set from the stream alone.
func (s *Store) Replay() (*Dataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ds := NewDataset()
	if _, err := s.replayFrom(0, ds); err != nil {
		return nil, err
	}
	return ds, nil
}

// replayFrom applies stream frames starting at offset to ds. It returns the
// number of frames applied. Caller holds s.mu.
func (s *Store) replayFrom(offset int64, ds *Dataset) (int, error) {
	f, err := os.Open(s.streamPath())
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to open checkpoint stream: %w", err)
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return 0, fmt.Errorf("failed to seek checkpoint stream: %w", err)
	}

	r := bufio.NewReader(f)
	good := offset
	n := 0
	for {
		e, size, err := readFrame(r)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Warnf("Checkpoint stream damaged at offset %d (%v), truncating", good, err)
			if terr := os.Truncate(s.streamPath(), good); terr != nil {
				return n, fmt.Errorf("failed to truncate checkpoint stream: %w", terr)
			}
			break
		}
		ds.Put(e.Ticker, e.Payload)
		good += size
		n++
	}
	return n, nil
}

// Append writes one ticker's payload to the stream, syncs it, and merges it
// into ds. Both happen under the writer lock so snapshots stay consistent.
func (s *Store) Append(ds *Dataset, t models.Ticker, p models.TickerPayload) error {
	frame, err := encodeFrame(entry{Ticker: t, Payload: p})
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream == nil {
		f, err := os.OpenFile(s.streamPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open checkpoint stream: %w", err)
		}
		s.stream = f
	}
	if _, err := s.stream.Write(frame); err != nil {
		return fmt.Errorf("failed to append checkpoint for %s: %w", t, err)
	}
	if err := s.stream.Sync(); err != nil {
		return fmt.Errorf("failed to sync checkpoint stream: %w", err)
	}
	if ds != nil {
		ds.Put(t, p)
	}
	return nil
}

// SaveSnapshot atomically writes ds together with the current stream length.
func (s *Store) SaveSnapshot(ds *Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	size, err := fileSize(s.streamPath())
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	snap := snapshot{Version: snapshotVersion, StreamOffset: size, Entries: ds.entries()}
	if err := gob.NewEncoder(&buf).Encode(&snap); err != nil {
		return fmt.Errorf("failed to encode checkpoint snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, snapshotFile+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create snapshot temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.snapshotPath()); err != nil {
		return fmt.Errorf("failed to install snapshot: %w", err)
	}
	log.Debugf("Saved checkpoint snapshot: %d tickers, stream offset %d", len(snap.Entries), size)
	return nil
}

// readSnapshot returns nil, nil when no snapshot exists.
func (s *Store) readSnapshot() (*snapshot, error) {
	data, err := os.ReadFile(s.snapshotPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	var snap snapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}
	return &snap, nil
}

func encodeFrame(e entry) ([]byte, error) {
	var payload bytes.Buffer
	if err := gob.NewEncoder(&payload).Encode(&e); err != nil {
		return nil, fmt.Errorf("failed to encode checkpoint record for %s: %w", e.Ticker, err)
	}
	frame := make([]byte, 8, 8+payload.Len())
	binary.BigEndian.PutUint32(frame[0:4], uint32(payload.Len()))
	binary.BigEndian.PutUint32(frame[4:8], crc32.ChecksumIEEE(payload.Bytes()))
	return append(frame, payload.Bytes()...), nil
}

// readFrame returns io.EOF only on a clean frame boundary.
func readFrame(r io.Reader) (entry, int64, error) {
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return entry{}, 0, io.EOF
		}
		return entry{}, 0, fmt.Errorf("%w: short header: %v", errCorruptFrame, err)
	}
	size := binary.BigEndian.Uint32(header[0:4])
	sum := binary.BigEndian.Uint32(header[4:8])
	if size == 0 || size > maxFrameSize {
		return entry{}, 0, fmt.Errorf("%w: bad length %d", errCorruptFrame, size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return entry{}, 0, fmt.Errorf("%w: short payload: %v", errCorruptFrame, err)
	}
	if crc32.ChecksumIEEE(payload) != sum {
		return entry{}, 0, fmt.Errorf("%w: checksum mismatch", errCorruptFrame)
	}
	var e entry
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&e); err != nil {
		return entry{}, 0, fmt.Errorf("%w: %v", errCorruptFrame, err)
	}
	return e, int64(len(header) + len(payload)), nil
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return info.Size(), nil
}
