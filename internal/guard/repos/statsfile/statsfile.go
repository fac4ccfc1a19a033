// Package statsfile persists filtering stats snapshots to disk.
package statsfile

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/haukened/rr-guard/internal/guard/domain"
)

// Format selects the on-disk encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts json, yaml or yml (case-insensitive).
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported stats format: %q", s)
	}
}

// FormatFromPath guesses the format from a file extension, defaulting to JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Encode writes s to w.
func Encode(w io.Writer, s domain.Stats, f Format) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(s); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported stats format: %q", string(f))
	}
}

// Decode reads a snapshot written by Encode.
func Decode(r io.Reader, f Format) (domain.Stats, error) {
	var s domain.Stats
	var err error
	switch f {
	case FormatJSON:
		err = json.NewDecoder(r).Decode(&s)
	case FormatYAML:
		err = yaml.NewDecoder(r).Decode(&s)
	default:
		err = fmt.Errorf("unsupported stats format: %q", string(f))
	}
	return s, err
}

// Writer replaces a stats file atomically: readers see either the previous
// snapshot or the new one, never a partial write.
type Writer struct {
	path   string
	format Format
}

func NewWriter(path string, f Format) (*Writer, error) {
	if path == "" {
		return nil, fmt.Errorf("stats file path must not be empty")
	}
	if f != FormatJSON && f != FormatYAML {
		return nil, fmt.Errorf("unsupported stats format: %q", string(f))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create stats directory: %w", err)
	}
	return &Writer{path: path, format: f}, nil
}

func (w *Writer) Path() string { return w.path }

// Write encodes s into a temp file next to the target and renames it over the target.
func (w *Writer) Write(s domain.Stats) error {
	dir := filepath.Dir(w.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(w.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp stats file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// no-op once the rename succeeded
		_ = os.Remove(tmpName)
	}()

	if err := Encode(tmp, s, w.format); err != nil {
		tmp.Close()
		return fmt.Errorf("encode stats: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync stats file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close stats file: %w", err)
	}
	if err := os.Rename(tmpName, w.path); err != nil {
		return fmt.Errorf("replace stats file: %w", err)
	}
	return nil
}

// Read loads a stats file, choosing the decoder by extension.
func Read(path string) (domain.Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.Stats{}, err
	}
	defer f.Close()
	return Decode(f, FormatFromPath(path))
}
