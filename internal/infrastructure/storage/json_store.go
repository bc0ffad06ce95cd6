package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"ProductScout/internal/domain"
	"ProductScout/internal/ports"
)

// JSONStore keeps one run_<date>.json file per run date in a directory.
type JSONStore struct {
	dir string
}

var _ ports.ResultStore = (*JSONStore)(nil)

// NewJSONStore creates dir on first use.
func NewJSONStore(dir string) *JSONStore {
	return &JSONStore{dir: dir}
}

// Append writes the record. An existing file for the date is never
// overwritten; ErrRunRecorded is returned instead.
func (s *JSONStore) Append(ctx context.Context, rec domain.RunRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.path(rec.RunDate)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create result dir: %w", err)
	}

	payload, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run record: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("%w: %s", domain.ErrRunRecorded, rec.RunDate)
	}
	if err != nil {
		return fmt.Errorf("open run record: %w", err)
	}

	if _, err := f.Write(append(payload, '\n')); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("write run record: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("close run record: %w", err)
	}
	return nil
}

// Load reads the record stored for runDate.
func (s *JSONStore) Load(ctx context.Context, runDate string) (domain.RunRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.RunRecord{}, err
	}
	path, err := s.path(runDate)
	if err != nil {
		return domain.RunRecord{}, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.RunRecord{}, fmt.Errorf("%w: %s", domain.ErrRunNotFound, runDate)
	}
	if err != nil {
		return domain.RunRecord{}, fmt.Errorf("read run record: %w", err)
	}

	var rec domain.RunRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return domain.RunRecord{}, fmt.Errorf("decode run record %s: %w", path, err)
	}
	return rec, nil
}

func (s *JSONStore) path(runDate string) (string, error) {
	if err := validRunDate(runDate); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, "run_"+runDate+".json"), nil
}

func validRunDate(runDate string) error {
	if _, err := time.Parse(domain.RunDateLayout, runDate); err != nil {
		return fmt.Errorf("invalid run date %q: %w", runDate, err)
	}
	return nil
}
