// Package store owns submission id allocation and the on-disk submission
// archive: bucketed directories holding meta.json, source.code and
// result.json.
package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/YanagiOrigami/LightCPVerifier/internal/judge/model"
	appErr "github.com/YanagiOrigami/LightCPVerifier/pkg/errors"
)

const (
	counterFileName = "counter.txt"
	metaFileName    = "meta.json"
	sourceFileName  = "source.code"
	resultFileName  = "result.json"

	// DefaultBucketSize groups submissions into directories of this many ids.
	DefaultBucketSize = 100
)

// Store allocates submission ids and manages the submissions tree.
type Store struct {
	dataRoot   string
	subRoot    string
	bucketSize int64

	// mu serializes the read-modify-write of the counter file. Correctness
	// of the gap-free id sequence trumps throughput on this path.
	mu sync.Mutex
}

// New creates a store rooted at dataRoot (counter file) and subRoot
// (submission archive). A non-positive bucketSize falls back to the default.
func New(dataRoot, subRoot string, bucketSize int64) (*Store, error) {
	if bucketSize <= 0 {
		bucketSize = DefaultBucketSize
	}
	if err := os.MkdirAll(dataRoot, 0755); err != nil {
		return nil, appErr.Wrapf(err, appErr.InternalServerError, "create data root failed")
	}
	if err := os.MkdirAll(subRoot, 0755); err != nil {
		return nil, appErr.Wrapf(err, appErr.InternalServerError, "create submissions root failed")
	}
	return &Store{dataRoot: dataRoot, subRoot: subRoot, bucketSize: bucketSize}, nil
}

func (s *Store) counterPath() string {
	return filepath.Join(s.dataRoot, counterFileName)
}

// NextID atomically allocates the next submission id and persists the
// counter. An absent or unreadable counter file restarts the sequence at 1.
func (s *Store) NextID() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	last := int64(0)
	if data, err := os.ReadFile(s.counterPath()); err == nil {
		if n, perr := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64); perr == nil && n > 0 {
			last = n
		}
	}
	next := last + 1
	if err := os.WriteFile(s.counterPath(), []byte(strconv.FormatInt(next, 10)), 0644); err != nil {
		return 0, appErr.Wrapf(err, appErr.InternalServerError, "persist submission counter failed")
	}
	return next, nil
}

// Paths returns the bucket directory and submission directory for one id.
func (s *Store) Paths(sid int64) (bucketDir, subDir string) {
	bucket := sid / s.bucketSize * s.bucketSize
	bucketDir = filepath.Join(s.subRoot, strconv.FormatInt(bucket, 10))
	subDir = filepath.Join(bucketDir, strconv.FormatInt(sid, 10))
	return bucketDir, subDir
}

// EnsureDirs creates the bucket and submission directories for one id.
func (s *Store) EnsureDirs(sid int64) (string, error) {
	_, subDir := s.Paths(sid)
	if err := os.MkdirAll(subDir, 0755); err != nil {
		return "", appErr.Wrapf(err, appErr.InternalServerError, "create submission dir failed")
	}
	return subDir, nil
}

// WriteMeta archives the intake record.
func (s *Store) WriteMeta(meta model.Meta) error {
	_, subDir := s.Paths(meta.SID)
	data, err := json.Marshal(meta)
	if err != nil {
		return appErr.Wrapf(err, appErr.InternalServerError, "encode meta failed")
	}
	if err := os.WriteFile(filepath.Join(subDir, metaFileName), data, 0644); err != nil {
		return appErr.Wrapf(err, appErr.InternalServerError, "write meta failed")
	}
	return nil
}

// WriteSource archives the submitted source text.
func (s *Store) WriteSource(sid int64, code string) error {
	_, subDir := s.Paths(sid)
	if err := os.WriteFile(filepath.Join(subDir, sourceFileName), []byte(code), 0644); err != nil {
		return appErr.Wrapf(err, appErr.InternalServerError, "write source failed")
	}
	return nil
}

// ReadSource rehydrates spilled source text.
func (s *Store) ReadSource(sid int64) (string, error) {
	_, subDir := s.Paths(sid)
	data, err := os.ReadFile(filepath.Join(subDir, sourceFileName))
	if err != nil {
		return "", appErr.Wrapf(err, appErr.InternalServerError, "read source failed")
	}
	return string(data), nil
}

// WriteResult persists the terminal verdict.
func (s *Store) WriteResult(sid int64, v model.Verdict) error {
	_, subDir := s.Paths(sid)
	data, err := json.Marshal(v)
	if err != nil {
		return appErr.Wrapf(err, appErr.InternalServerError, "encode verdict failed")
	}
	if err := os.WriteFile(filepath.Join(subDir, resultFileName), data, 0644); err != nil {
		return appErr.Wrapf(err, appErr.InternalServerError, "write verdict failed")
	}
	return nil
}

// ReadResult loads the persisted verdict, if any.
func (s *Store) ReadResult(sid int64) (model.Verdict, error) {
	_, subDir := s.Paths(sid)
	data, err := os.ReadFile(filepath.Join(subDir, resultFileName))
	if err != nil {
		return model.Verdict{}, appErr.Wrapf(err, appErr.SubmissionNotFound, "result for %d not found", sid)
	}
	var v model.Verdict
	if err := json.Unmarshal(data, &v); err != nil {
		return model.Verdict{}, appErr.Wrapf(err, appErr.InternalServerError, "decode verdict failed")
	}
	return v, nil
}

// Reset restarts the id sequence at 1. Clearing the submissions tree is the
// caller's responsibility.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.WriteFile(s.counterPath(), []byte("0"), 0644); err != nil {
		return appErr.Wrapf(err, appErr.InternalServerError, "reset submission counter failed")
	}
	return nil
}

// SubmissionsRoot returns the archive root, for reset flows.
func (s *Store) SubmissionsRoot() string {
	return s.subRoot
}

// EmptyTree removes every child of root without removing root itself.
func EmptyTree(root string) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return appErr.Wrapf(err, appErr.InternalServerError, "read dir failed")
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(root, e.Name())); err != nil {
			return appErr.Wrapf(err, appErr.InternalServerError, "remove %s failed", e.Name())
		}
	}
	return nil
}
