package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Open opens the named backend below dataDir. Supported backends are
// "leveldb", "bolt" and "memory".
func Open(backend, dataDir string) (Database, error) {
	backend = strings.ToLower(strings.TrimSpace(backend))
	if backend == "memory" {
		return NewMemDB(), nil
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create data dir: %w", err)
	}
	switch backend {
	case "", "leveldb":
		db, err := NewLevelDB(filepath.Join(dataDir, "state"))
		if err != nil {
			return nil, err
		}
		return db, nil
	case "bolt":
		db, err := NewBoltDB(filepath.Join(dataDir, "state.bolt"))
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", backend)
	}
}
