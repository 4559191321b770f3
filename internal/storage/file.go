package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	logx "hivemind/pkg/logx"
)

// fileStore keeps the snapshot in a single file:
//
//	zstd( <header JSON>\n <snapshot JSON> )
//
// Saves go to <path>.tmp and are renamed over <path>, so a crash mid-write
// leaves the previous snapshot intact.
type fileStore struct {
	log  logx.Logger
	path string

	mu sync.Mutex
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	// Leftover from an interrupted save.
	_ = os.Remove(path + ".tmp")
	return &fileStore{log: log, path: path}, nil
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) SaveTasks(ctx context.Context, snap Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := s.path + ".tmp"
	if err := writeSnapshot(tmp, snap); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

func (s *fileStore) LoadTasks(ctx context.Context) (Snapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, snap, err := readSnapshot(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("read snapshot %s: %w", s.path, err)
	}
	return cloneSnapshot(snap), true, nil
}

func writeSnapshot(path string, snap Snapshot) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		_ = f.Close()
		return err
	}
	bw := bufio.NewWriterSize(enc, 64*1024)

	werr := func() error {
		hb, err := json.Marshal(Header{
			Version: FormatVersion,
			Tick:    snap.Tick,
			Tasks:   len(snap.Tasks),
			SavedAt: time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		if _, err := bw.Write(hb); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
		if err := json.NewEncoder(bw).Encode(snap); err != nil {
			return fmt.Errorf("json encode: %w", err)
		}
		return bw.Flush()
	}()
	if cerr := enc.Close(); werr == nil {
		werr = cerr
	}
	if werr == nil {
		werr = f.Sync()
	}
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	return werr
}

func readSnapshot(path string) (Header, Snapshot, error) {
	var (
		hdr  Header
		snap Snapshot
	)
	f, err := os.Open(path)
	if err != nil {
		return hdr, snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return hdr, snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)
	line, err := br.ReadBytes('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return hdr, snap, fmt.Errorf("header: %w", err)
	}
	if err := json.Unmarshal(line, &hdr); err != nil {
		return hdr, snap, fmt.Errorf("header: %w", err)
	}
	if hdr.Version != FormatVersion {
		return hdr, snap, fmt.Errorf("unsupported snapshot version %d", hdr.Version)
	}
	if err := json.NewDecoder(br).Decode(&snap); err != nil {
		return hdr, snap, fmt.Errorf("json decode: %w", err)
	}
	if len(snap.Tasks) != hdr.Tasks {
		return hdr, snap, fmt.Errorf("header says %d tasks, body has %d", hdr.Tasks, len(snap.Tasks))
	}
	return hdr, snap, nil
}

// ReadFile decodes a file snapshot without opening a store.
func ReadFile(path string) (Header, Snapshot, error) {
	return readSnapshot(path)
}
