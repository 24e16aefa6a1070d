package vector

import (
	"fmt"

	"github.com/hyperjump/soulsync/internal/storage"
)

// StoreType represents the vector store backend.
type StoreType string

const (
	// StoreTypeMemory keeps vectors in process memory with an optional snapshot file.
	StoreTypeMemory StoreType = "memory"
	// StoreTypeSQLite stores vectors as BLOBs in the SQLite database used for users.
	StoreTypeSQLite StoreType = "sqlite"
	// StoreTypePGVector stores vectors in a pgvector column. Requires the postgres driver.
	StoreTypePGVector StoreType = "pgvector"
)

// NewStore creates a vector store of the given type on top of st.
// Supported types: "memory", "sqlite" (default for sqlite storage), "pgvector" (default for postgres).
func NewStore(storeType string, dimensions int, st storage.Storage) (Store, error) {
	if storeType == "" {
		storeType = string(StoreTypeSQLite)
		if st != nil && st.Dialect() == storage.DialectPostgres {
			storeType = string(StoreTypePGVector)
		}
	}
	switch StoreType(storeType) {
	case StoreTypeMemory:
		if st == nil {
			// EligibleOnly queries fail without an eligibility source.
			return NewMemoryStore(dimensions, nil)
		}
		return NewMemoryStore(dimensions, st)
	case StoreTypeSQLite:
		if st == nil || st.Dialect() != storage.DialectSQLite {
			return nil, fmt.Errorf("vector store %q requires sqlite storage", storeType)
		}
		return NewSQLiteStore(st.DB(), dimensions)
	case StoreTypePGVector:
		if st == nil || st.Dialect() != storage.DialectPostgres {
			return nil, fmt.Errorf("vector store %q requires postgres storage", storeType)
		}
		return NewPGVectorStore(st.DB(), dimensions)
	default:
		return nil, fmt.Errorf("unknown vector store type: %s (supported: memory, sqlite, pgvector)", storeType)
	}
}
