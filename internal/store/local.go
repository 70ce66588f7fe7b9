package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lakekit-io/lakekit/internal/ir"
)

// Local stores records in a single JSON file. Writes rewrite the whole
// file; the surrounding lock serializes concurrent processes, and within a
// run each node id is written by exactly one task.
type Local struct {
	path string
}

func NewLocal(path string) *Local {
	return &Local{path: path}
}

type recordFile struct {
	Version int                        `json:"version"`
	Records map[string]*ir.ApplyRecord `json:"records"`
}

func (l *Local) Get(ctx context.Context, id string) (*ir.ApplyRecord, error) {
	records, err := l.load()
	if err != nil {
		return nil, err
	}
	return records[id], nil
}

func (l *Local) Put(ctx context.Context, id string, rec *ir.ApplyRecord) error {
	records, err := l.load()
	if err != nil {
		return err
	}
	records[id] = rec
	return l.save(records)
}

func (l *Local) Delete(ctx context.Context, id string) error {
	records, err := l.load()
	if err != nil {
		return err
	}
	delete(records, id)
	return l.save(records)
}

func (l *Local) List(ctx context.Context) (map[string]*ir.ApplyRecord, error) {
	return l.load()
}

func (l *Local) load() (map[string]*ir.ApplyRecord, error) {
	raw, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return make(map[string]*ir.ApplyRecord), nil
	}
	if err != nil {
		return nil, &Error{Op: "read", Err: err}
	}

	if IsEncrypted(raw) {
		raw, err = DecryptRecords(raw)
		if err != nil {
			return nil, &Error{Op: "decrypt", Err: err}
		}
	}

	var f recordFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, &Error{Op: "parse", Err: fmt.Errorf("corrupt record file %s: %w", l.path, err)}
	}
	if f.Records == nil {
		f.Records = make(map[string]*ir.ApplyRecord)
	}
	return f.Records, nil
}

func (l *Local) save(records map[string]*ir.ApplyRecord) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return &Error{Op: "write", Err: err}
	}

	content, err := json.MarshalIndent(recordFile{Version: 1, Records: records}, "", "  ")
	if err != nil {
		return &Error{Op: "serialize", Err: err}
	}
	content = append(content, '\n')

	encrypted, err := EncryptRecords(content)
	if err != nil {
		return &Error{Op: "encrypt", Err: err}
	}

	// Write-and-rename keeps a crash from leaving a truncated file.
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, encrypted, 0600); err != nil {
		return &Error{Op: "write", Err: err}
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return &Error{Op: "write", Err: err}
	}
	return nil
}
