// Package data implements the DataLoader port on session-scoped CSV files.
package data

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/atelierlabs/concierge/internal/logging"
	"github.com/atelierlabs/concierge/pkg/domain"
)

// sessionIDRe bounds session IDs to path-safe names.
var sessionIDRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,127}$`)

// Loader stores one original upload plus any number of derived datasets
// per session. Load resolves the most recently derived dataset, falling
// back to the original upload.
type Loader struct {
	baseDir string
	logger  *slog.Logger
}

// NewLoader creates a Loader rooted at baseDir.
func NewLoader(baseDir string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Loader{baseDir: baseDir, logger: logger}
}

func (l *Loader) sessionDir(sessionID string) (string, error) {
	if !sessionIDRe.MatchString(sessionID) {
		return "", fmt.Errorf("invalid session id %q", sessionID)
	}
	return filepath.Join(l.baseDir, sessionID), nil
}

// Put stores the original upload.
func (l *Loader) Put(ctx context.Context, sessionID string, columns []string, rows [][]string) (*domain.Dataset, error) {
	dir, err := l.sessionDir(sessionID)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}

	path := filepath.Join(dir, "original.csv")
	if err := writeCSV(path, columns, rows); err != nil {
		return nil, err
	}
	l.logger.Info("dataset stored", "session", sessionID, "rows", len(rows))
	return &domain.Dataset{Name: "original", Path: path, Columns: columns}, nil
}

// SaveDerived stores a derived dataset, which becomes the active one.
func (l *Loader) SaveDerived(ctx context.Context, sessionID, name string, columns []string, rows [][]string) (*domain.Dataset, error) {
	dir, err := l.sessionDir(sessionID)
	if err != nil {
		return nil, err
	}
	derivedDir := filepath.Join(dir, "derived")
	if err := os.MkdirAll(derivedDir, 0o750); err != nil {
		return nil, fmt.Errorf("create derived dir: %w", err)
	}

	// A nanosecond prefix keeps directory order equal to derivation order.
	file := fmt.Sprintf("%020d_%s.csv", time.Now().UnixNano(), safeName(name))
	path := filepath.Join(derivedDir, file)
	if err := writeCSV(path, columns, rows); err != nil {
		return nil, err
	}
	l.logger.Info("derived dataset stored", "session", sessionID, "name", name)
	return &domain.Dataset{Name: name, Path: path, Columns: columns, Derived: true}, nil
}

// Load returns the active dataset: the newest derived one, or the
// original upload when nothing has been derived yet.
func (l *Loader) Load(ctx context.Context, sessionID string) (*domain.Dataset, error) {
	dir, err := l.sessionDir(sessionID)
	if err != nil {
		return nil, err
	}

	if path, name, ok := newestDerived(filepath.Join(dir, "derived")); ok {
		columns, err := readHeader(path)
		if err != nil {
			return nil, err
		}
		return &domain.Dataset{Name: name, Path: path, Columns: columns, Derived: true}, nil
	}

	path := filepath.Join(dir, "original.csv")
	columns, err := readHeader(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, err
	}
	return &domain.Dataset{Name: "original", Path: path, Columns: columns}, nil
}

// Delete removes all datasets for a session.
func (l *Loader) Delete(ctx context.Context, sessionID string) error {
	dir, err := l.sessionDir(sessionID)
	if err != nil {
		return err
	}
	return os.RemoveAll(dir)
}

func newestDerived(dir string) (path, name string, ok bool) {
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) == 0 {
		return "", "", false
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".csv") {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", "", false
	}
	sort.Strings(names)
	file := names[len(names)-1]

	base := strings.TrimSuffix(file, ".csv")
	if i := strings.IndexByte(base, '_'); i >= 0 {
		base = base[i+1:]
	}
	return filepath.Join(dir, file), base, true
}

func writeCSV(path string, columns []string, rows [][]string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640)
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(columns); err != nil {
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func readHeader(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return csv.NewReader(f).Read()
}

// ReadCSV loads a whole dataset file. Used by the reference tools.
func ReadCSV(path string) (columns []string, rows [][]string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("empty dataset: %s", path)
	}
	return records[0], records[1:], nil
}

var safeNameRe = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

func safeName(name string) string {
	cleaned := safeNameRe.ReplaceAllString(name, "_")
	if cleaned == "" {
		return "derived"
	}
	return cleaned
}
