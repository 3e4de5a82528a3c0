package conversation

import (
	"os"
	"path/filepath"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
)

// Archive appends evicted and expired conversations to a compressed audit
// file. Each record is written as its own gzip member holding one JSON line,
// so the file stays readable after a crash mid-write.
type Archive struct {
	mu   sync.Mutex
	path string
}

// NewArchive creates the archive directory and returns the appender.
func NewArchive(path string) (*Archive, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	return &Archive{path: path}, nil
}

// Write appends one archived conversation.
func (a *Archive) Write(rec ArchivedConversation) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	f, err := os.OpenFile(a.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	zw := gzip.NewWriter(f)
	enc := json.NewEncoder(zw)
	if err := enc.Encode(rec); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}
