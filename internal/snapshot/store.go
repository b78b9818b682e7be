package snapshot

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/semdex/internal/domain"
	"github.com/kailas-cloud/semdex/internal/index"
)

const (
	pointerName     = "latest_paths.json"
	indexName       = "index.bin"
	documentsName   = "documents.jsonl"
	snapshotsDir    = "snapshots"
	timestampLayout = "20060102_150405"
)

// Store reads and writes snapshots under a single data root.
type Store struct {
	root   string
	logger *zap.Logger
	now    func() time.Time
}

// NewStore creates a snapshot store rooted at dir.
func NewStore(dir string, logger *zap.Logger) *Store {
	return &Store{root: dir, logger: logger, now: time.Now}
}

// PointerPath returns the location of the active-snapshot pointer file.
func (s *Store) PointerPath() string {
	return filepath.Join(s.root, pointerName)
}

// Write persists the pair into a fresh versioned directory and then swaps
// the pointer onto it. The pointer is the last thing written, so a failed
// write leaves the previously active snapshot untouched.
func (s *Store) Write(idx *index.Flat, documents []domain.Document) (domain.SnapshotInfo, error) {
	if idx.Len() != len(documents) {
		return domain.SnapshotInfo{}, fmt.Errorf(
			"index rows (%d) and documents (%d) must match", idx.Len(), len(documents))
	}

	ts := s.now().UTC().Format(timestampLayout)
	dir, err := s.makeVersionDir(ts)
	if err != nil {
		return domain.SnapshotInfo{}, err
	}

	info := domain.SnapshotInfo{
		IndexPath:      filepath.Join(dir, indexName),
		DocumentsPath:  filepath.Join(dir, documentsName),
		Timestamp:      ts,
		TotalDocuments: len(documents),
	}

	if err := writeIndexFile(info.IndexPath, idx); err != nil {
		os.RemoveAll(dir)
		return domain.SnapshotInfo{}, err
	}
	if err := writeDocumentsFile(info.DocumentsPath, documents); err != nil {
		os.RemoveAll(dir)
		return domain.SnapshotInfo{}, err
	}
	if err := s.writePointer(info); err != nil {
		os.RemoveAll(dir)
		return domain.SnapshotInfo{}, err
	}

	s.logger.Info("Snapshot written",
		zap.String("dir", dir),
		zap.String("timestamp", ts),
		zap.Int("documents", len(documents)),
		zap.Int("dimensions", idx.Dim()),
	)
	return info, nil
}

// Load reads the active snapshot. Every failure mode (no pointer, corrupt
// pointer, missing or corrupt files, mismatched pair) wraps domain.ErrNoIndex
// so callers can tell "nothing to search" apart from zero matches.
func (s *Store) Load(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := s.Pointer()
	if err != nil {
		return nil, err
	}

	idx, err := loadIndexFile(info.IndexPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNoIndex, err)
	}

	documents, err := loadDocumentsFile(info.DocumentsPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNoIndex, err)
	}

	if idx.Len() != len(documents) {
		return nil, fmt.Errorf("%w: index rows (%d) and documents (%d) do not match",
			domain.ErrNoIndex, idx.Len(), len(documents))
	}

	return New(idx, documents, info), nil
}

// Pointer reads and parses only the pointer file.
func (s *Store) Pointer() (domain.SnapshotInfo, error) {
	data, err := os.ReadFile(s.PointerPath())
	if err != nil {
		return domain.SnapshotInfo{}, fmt.Errorf("%w: read pointer: %v", domain.ErrNoIndex, err)
	}

	var info domain.SnapshotInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return domain.SnapshotInfo{}, fmt.Errorf("%w: parse pointer: %v", domain.ErrNoIndex, err)
	}
	if info.IndexPath == "" || info.DocumentsPath == "" {
		return domain.SnapshotInfo{}, fmt.Errorf("%w: pointer names no snapshot files", domain.ErrNoIndex)
	}
	return info, nil
}

// Prune removes all but the newest keep snapshot directories. The directory
// referenced by the active pointer is never removed.
func (s *Store) Prune(keep int) (int, error) {
	if keep < 1 {
		keep = 1
	}

	entries, err := os.ReadDir(filepath.Join(s.root, snapshotsDir))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("list snapshots: %w", err)
	}

	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		}
	}
	if len(dirs) <= keep {
		return 0, nil
	}

	// Directory names start with the build timestamp, so lexicographic
	// order is chronological.
	sort.Strings(dirs)

	var active string
	if info, err := s.Pointer(); err == nil {
		active = filepath.Base(filepath.Dir(info.IndexPath))
	}

	removed := 0
	for _, name := range dirs[:len(dirs)-keep] {
		if name == active {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.root, snapshotsDir, name)); err != nil {
			return removed, fmt.Errorf("remove snapshot %s: %w", name, err)
		}
		s.logger.Debug("Old snapshot removed", zap.String("dir", name))
		removed++
	}
	return removed, nil
}

// makeVersionDir creates the directory for one build. Builds within the same
// second get a numeric suffix.
func (s *Store) makeVersionDir(ts string) (string, error) {
	if err := os.MkdirAll(filepath.Join(s.root, snapshotsDir), 0o755); err != nil {
		return "", fmt.Errorf("create snapshots dir: %w", err)
	}

	dir := filepath.Join(s.root, snapshotsDir, ts)
	for i := 1; ; i++ {
		err := os.Mkdir(dir, 0o755)
		if err == nil {
			return dir, nil
		}
		if !os.IsExist(err) {
			return "", fmt.Errorf("create snapshot dir: %w", err)
		}
		dir = filepath.Join(s.root, snapshotsDir, fmt.Sprintf("%s_%d", ts, i))
	}
}

func (s *Store) writePointer(info domain.SnapshotInfo) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal pointer: %w", err)
	}

	path := s.PointerPath()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write pointer tmp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("swap pointer: %w", err)
	}
	return nil
}

func writeIndexFile(path string, idx *index.Flat) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}

	if err := idx.Encode(f); err != nil {
		f.Close()
		return fmt.Errorf("encode index: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync index file: %w", err)
	}
	return f.Close()
}

func writeDocumentsFile(path string, documents []domain.Document) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create documents file: %w", err)
	}

	bw := bufio.NewWriter(f)
	enc := json.NewEncoder(bw)
	for i := range documents {
		if err := enc.Encode(&documents[i]); err != nil {
			f.Close()
			return fmt.Errorf("encode document %d: %w", i, err)
		}
	}

	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush documents file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync documents file: %w", err)
	}
	return f.Close()
}

func loadIndexFile(path string) (*index.Flat, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	defer f.Close()

	idx, err := index.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode index %s: %w", path, err)
	}
	return idx, nil
}

func loadDocumentsFile(path string) ([]domain.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open documents: %w", err)
	}
	defer f.Close()

	var documents []domain.Document
	dec := json.NewDecoder(bufio.NewReader(f))
	for {
		var doc domain.Document
		if err := dec.Decode(&doc); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("decode document %d: %w", len(documents), err)
		}
		documents = append(documents, doc)
	}
	return documents, nil
}
