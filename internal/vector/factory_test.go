package vector

import (
	"context"
	"testing"

	"github.com/hyperjump/soulsync/internal/storage"
)

func TestNewStore(t *testing.T) {
	st, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	tests := []struct {
		name      string
		storeType string
		st        storage.Storage
		dims      int
		wantType  string
		wantErr   bool
	}{
		{"memory", "memory", st, 3, "memory", false},
		{"memory without storage", "memory", nil, 3, "memory", false},
		{"sqlite", "sqlite", st, 3, "sqlite", false},
		{"default for sqlite storage", "", st, 3, "sqlite", false},
		{"pgvector needs postgres", "pgvector", st, 3, "", true},
		{"sqlite needs storage", "sqlite", nil, 3, "", true},
		{"unknown", "faiss", st, 3, "", true},
		{"zero dimensions", "memory", st, 0, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vs, err := NewStore(tt.storeType, tt.dims, tt.st)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewStore() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			defer vs.Close()
			if vs.Type() != tt.wantType {
				t.Errorf("Type() = %s, want %s", vs.Type(), tt.wantType)
			}
			if vs.Dimensions() != tt.dims {
				t.Errorf("Dimensions() = %d", vs.Dimensions())
			}
			if n, err := vs.Count(context.Background()); err != nil || n != 0 {
				t.Errorf("Count() = %d, %v", n, err)
			}
		})
	}
}
