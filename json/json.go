// Package json serializes history records to a versioned JSON envelope
// for export and import.
package json

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/refinekit/refine"
	"github.com/refinekit/refine/history"
)

// envelope is the v1 wire format for an export file.
type envelope struct {
	Version    int         `json:"version"`
	ExportedAt time.Time   `json:"exported_at"`
	Records    []recordDTO `json:"records"`
}

// recordDTO is the JSON representation of a history.Record.
type recordDTO struct {
	ID        string    `json:"id"`
	Original  string    `json:"original"`
	Enhanced  string    `json:"enhanced"`
	Mode      string    `json:"mode"`
	FileType  string    `json:"file_type,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// MarshalRecords serializes records to the v1 envelope format.
func MarshalRecords(recs []history.Record) ([]byte, error) {
	env := envelope{
		Version:    1,
		ExportedAt: time.Now().UTC(),
		Records:    make([]recordDTO, len(recs)),
	}
	for i, rec := range recs {
		env.Records[i] = recordDTO{
			ID:        rec.ID,
			Original:  rec.Original,
			Enhanced:  rec.Enhanced,
			Mode:      string(rec.Mode),
			FileType:  rec.FileType,
			CreatedAt: rec.CreatedAt,
		}
	}
	return json.MarshalIndent(env, "", "  ")
}

// UnmarshalRecords deserializes records from the v1 envelope format.
func UnmarshalRecords(data []byte) ([]history.Record, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Version != 1 {
		return nil, fmt.Errorf("unsupported envelope version: %d", env.Version)
	}
	recs := make([]history.Record, len(env.Records))
	for i, dto := range env.Records {
		recs[i] = history.Record{
			ID:        dto.ID,
			Original:  dto.Original,
			Enhanced:  dto.Enhanced,
			Mode:      refine.Mode(dto.Mode),
			FileType:  dto.FileType,
			CreatedAt: dto.CreatedAt,
		}
	}
	return recs, nil
}

// Save writes records to a JSON file, creating parent directories as
// needed. The write is atomic via a temp file and rename.
func Save(path string, recs []history.Record) error {
	data, err := MarshalRecords(recs)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// Load reads records from a JSON export file.
func Load(path string) ([]history.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	recs, err := UnmarshalRecords(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return recs, nil
}
