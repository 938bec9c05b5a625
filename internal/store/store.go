// Package store persists per-domain crawl state: resource records, the link
// graph, and the raw/derived content tree. Records and edges are appended to
// JSONL logs after every processed target and compacted into full JSON
// snapshots; all whole-file writes are atomic (write-temp-then-rename) so an
// interrupted run never leaves partial JSON behind.
package store

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/siddhantgarodia/Web-Crawler-AI-Chatbot/pkg/types"
)

const (
	recordsLogName   = "records.log"
	edgesLogName     = "edges.log"
	recordsSnapName  = "resources.json"
	edgesSnapName    = "link_graph.json"
	rawDirName       = "raw"
	filesDirName     = "files"
	parsedDirName    = "parsed"
	defaultFileMode  = 0o644
	defaultDirMode   = 0o755
	defaultSnapEvery = 1
)

// Mirror receives a copy of every flushed record and edge batch, typically
// backed by a relational database. A nil Mirror is valid.
type Mirror interface {
	SaveRecord(rec types.ResourceRecord) error
	SaveEdges(edges []types.LinkEdge) error
	Close() error
}

// DomainStore owns all durable state for a single domain crawl. One instance
// exists per crawl run; a fresh run truncates the logs and overwrites the
// prior snapshots for its domain.
type DomainStore struct {
	dir           string
	snapshotEvery int
	mirror        Mirror

	mu         sync.Mutex
	records    []types.ResourceRecord
	edges      []types.LinkEdge
	recordsLog *os.File
	edgesLog   *os.File
	sinceSnap  int
	closed     bool
}

// Open creates the per-domain directory tree under outputDir and opens
// fresh append logs. snapshotEvery controls how many record appends elapse
// between snapshot compactions; <= 0 snapshots after every record.
func Open(outputDir, host string, snapshotEvery int, mirror Mirror) (*DomainStore, error) {
	if snapshotEvery <= 0 {
		snapshotEvery = defaultSnapEvery
	}
	dir := filepath.Join(outputDir, DomainDirName(host))
	for _, sub := range []string{"", rawDirName, filesDirName, parsedDirName} {
		if err := os.MkdirAll(filepath.Join(dir, sub), defaultDirMode); err != nil {
			return nil, fmt.Errorf("create domain dir: %w", err)
		}
	}

	recordsLog, err := os.OpenFile(filepath.Join(dir, recordsLogName), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, defaultFileMode)
	if err != nil {
		return nil, fmt.Errorf("open records log: %w", err)
	}
	edgesLog, err := os.OpenFile(filepath.Join(dir, edgesLogName), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, defaultFileMode)
	if err != nil {
		recordsLog.Close()
		return nil, fmt.Errorf("open edges log: %w", err)
	}

	return &DomainStore{
		dir:           dir,
		snapshotEvery: snapshotEvery,
		mirror:        mirror,
		recordsLog:    recordsLog,
		edgesLog:      edgesLog,
	}, nil
}

// Dir returns the per-domain root directory.
func (s *DomainStore) Dir() string {
	return s.dir
}

// AppendRecord durably appends one resource record. Any write failure is
// returned to the caller and must abort the run: continuing would silently
// lose data.
func (s *DomainStore) AppendRecord(rec types.ResourceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store closed")
	}

	if err := appendJSONL(s.recordsLog, rec); err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	s.records = append(s.records, rec)

	if s.mirror != nil {
		if err := s.mirror.SaveRecord(rec); err != nil {
			return fmt.Errorf("mirror record: %w", err)
		}
	}

	s.sinceSnap++
	if s.sinceSnap >= s.snapshotEvery {
		if err := s.snapshotLocked(); err != nil {
			return err
		}
	}
	return nil
}

// AppendEdges durably appends the link edges discovered on one page.
func (s *DomainStore) AppendEdges(edges []types.LinkEdge) error {
	if len(edges) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store closed")
	}

	for _, edge := range edges {
		if err := appendJSONL(s.edgesLog, edge); err != nil {
			return fmt.Errorf("append edge: %w", err)
		}
	}
	s.edges = append(s.edges, edges...)

	if s.mirror != nil {
		if err := s.mirror.SaveEdges(edges); err != nil {
			return fmt.Errorf("mirror edges: %w", err)
		}
	}
	return nil
}

// Records returns a copy of the records appended so far.
func (s *DomainStore) Records() []types.ResourceRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.ResourceRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Edges returns a copy of the edges appended so far.
func (s *DomainStore) Edges() []types.LinkEdge {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.LinkEdge, len(s.edges))
	copy(out, s.edges)
	return out
}

// Snapshot rewrites the full resources and link-graph snapshot files.
func (s *DomainStore) Snapshot() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *DomainStore) snapshotLocked() error {
	if err := writeJSONAtomic(filepath.Join(s.dir, recordsSnapName), s.records); err != nil {
		return fmt.Errorf("snapshot resources: %w", err)
	}
	if err := writeJSONAtomic(filepath.Join(s.dir, edgesSnapName), s.edges); err != nil {
		return fmt.Errorf("snapshot link graph: %w", err)
	}
	s.sinceSnap = 0
	return nil
}

// Close writes a final snapshot and releases the log files and mirror.
func (s *DomainStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	snapErr := s.snapshotLocked()
	if err := s.recordsLog.Close(); err != nil && snapErr == nil {
		snapErr = fmt.Errorf("close records log: %w", err)
	}
	if err := s.edgesLog.Close(); err != nil && snapErr == nil {
		snapErr = fmt.Errorf("close edges log: %w", err)
	}
	if s.mirror != nil {
		if err := s.mirror.Close(); err != nil && snapErr == nil {
			snapErr = fmt.Errorf("close mirror: %w", err)
		}
	}
	return snapErr
}

// SaveRaw writes the raw HTML body for a page and returns its path.
func (s *DomainStore) SaveRaw(token string, body []byte) (string, error) {
	path := filepath.Join(s.dir, rawDirName, token+".html")
	if err := writeFileAtomic(path, body); err != nil {
		return "", fmt.Errorf("save raw html: %w", err)
	}
	return path, nil
}

// ParsedPayload is the sidecar JSON written next to every extracted
// resource, text possibly empty.
type ParsedPayload struct {
	URL  string `json:"url"`
	Text string `json:"text"`
	Note string `json:"note,omitempty"`
}

// SaveParsed writes the extraction sidecar for an HTML page.
func (s *DomainStore) SaveParsed(token string, payload ParsedPayload) (string, error) {
	path := filepath.Join(s.dir, parsedDirName, token+".json")
	if err := writeJSONAtomic(path, payload); err != nil {
		return "", fmt.Errorf("save parsed output: %w", err)
	}
	return path, nil
}

// SaveDocumentParsed writes the extraction sidecar for a downloaded document.
func (s *DomainStore) SaveDocumentParsed(token string, payload ParsedPayload) (string, error) {
	path := filepath.Join(s.dir, filesDirName, token+"-parsed.json")
	if err := writeJSONAtomic(path, payload); err != nil {
		return "", fmt.Errorf("save document text: %w", err)
	}
	return path, nil
}

// WriteDocument streams a document download into the content tree through
// write, committing the file only if write succeeds. The destination is
// files/<token><ext>; nothing is left behind on failure.
func (s *DomainStore) WriteDocument(token, ext string, write func(io.Writer) error) (string, error) {
	dest := filepath.Join(s.dir, filesDirName, token+ext)
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".tmp*")
	if err != nil {
		return "", fmt.Errorf("create temp document: %w", err)
	}
	tmpName := tmp.Name()

	if err := write(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("close temp document: %w", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("commit document: %w", err)
	}
	return dest, nil
}

func appendJSONL(f *os.File, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if _, err := f.Write(data); err != nil {
		return err
	}
	return nil
}

func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, defaultFileMode); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
