package vector

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hyperjump/soulsync/internal/models"
)

// MemoryStore keeps embeddings in a map and searches them by brute force.
// Suitable for tests, the CLI and small deployments; Save/Load persist a binary snapshot.
type MemoryStore struct {
	dimensions  int
	eligibility Eligibility
	entries     map[string]*models.ProfileEmbedding
	mu          sync.RWMutex
}

// NewMemoryStore creates an in-memory store. eligibility may be nil when EligibleOnly
// queries are never issued.
func NewMemoryStore(dimensions int, eligibility Eligibility) (*MemoryStore, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryStore{
		dimensions:  dimensions,
		eligibility: eligibility,
		entries:     make(map[string]*models.ProfileEmbedding),
	}, nil
}

// Type returns the store type identifier.
func (m *MemoryStore) Type() string {
	return string(StoreTypeMemory)
}

// Dimensions returns the vector dimension the store accepts.
func (m *MemoryStore) Dimensions() int {
	return m.dimensions
}

// Upsert stores a copy of vector for userID, replacing any previous one.
func (m *MemoryStore) Upsert(ctx context.Context, userID string, vector []float32) error {
	if len(vector) != m.dimensions {
		return fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(vector), m.dimensions)
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)
	m.mu.Lock()
	m.entries[userID] = &models.ProfileEmbedding{UserID: userID, Vector: vec, UpdatedAt: time.Now().UTC()}
	m.mu.Unlock()
	return nil
}

// Get returns a copy of the stored embedding.
func (m *MemoryStore) Get(ctx context.Context, userID string) (*models.ProfileEmbedding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[userID]
	if !ok {
		return nil, ErrNotFound
	}
	out := *e
	out.Vector = append([]float32(nil), e.Vector...)
	return &out, nil
}

// Nearest computes L2 distances from the reference vector to every other stored vector.
// Eligibility is checked after the read lock is released.
func (m *MemoryStore) Nearest(ctx context.Context, q NearestQuery) ([]*Neighbor, error) {
	if q.EligibleOnly && m.eligibility == nil {
		return nil, fmt.Errorf("eligibility source not configured")
	}

	m.mu.RLock()
	ref, ok := m.entries[q.ReferenceID]
	if !ok {
		m.mu.RUnlock()
		return nil, ErrNoVectorForReference
	}
	neighbors := make([]*Neighbor, 0, len(m.entries))
	for id, e := range m.entries {
		if q.excludes(id) {
			continue
		}
		d, err := L2Distance(ref.Vector, e.Vector)
		if err != nil {
			m.mu.RUnlock()
			return nil, err
		}
		neighbors = append(neighbors, &Neighbor{UserID: id, Distance: d})
	}
	m.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if q.EligibleOnly && len(neighbors) > 0 {
		ids := make([]string, len(neighbors))
		for i, n := range neighbors {
			ids[i] = n.UserID
		}
		eligible, err := m.eligibility.FilterEligible(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("filter eligible: %w", err)
		}
		kept := neighbors[:0]
		for _, n := range neighbors {
			if eligible[n.UserID] {
				kept = append(kept, n)
			}
		}
		neighbors = kept
	}
	return sortAndTrim(neighbors, q.Limit), nil
}

// Count returns the number of stored embeddings.
func (m *MemoryStore) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

// Save persists the store to path. Directory is created if needed. Format: dimension (4), n (4),
// then per entry: idLen (4), id bytes, updatedAt unix nanos (8), vector (dimension*4 bytes).
func (m *MemoryStore) Save(path string) error {
	if path == "" {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create snapshot file: %w", err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	if err := binary.Write(w, binary.LittleEndian, uint32(m.dimensions)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(m.entries))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	for id, e := range m.entries {
		if err := binary.Write(w, binary.LittleEndian, uint32(len(id))); err != nil {
			return fmt.Errorf("write id len: %w", err)
		}
		if _, err := w.WriteString(id); err != nil {
			return fmt.Errorf("write id: %w", err)
		}
		if err := binary.Write(w, binary.LittleEndian, e.UpdatedAt.UnixNano()); err != nil {
			return fmt.Errorf("write timestamp: %w", err)
		}
		if _, err := w.Write(float32SliceToBytes(e.Vector)); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	return w.Flush()
}

// Load replaces the in-memory contents with the snapshot at path. Dimensions must match.
// A missing file leaves the store unchanged.
func (m *MemoryStore) Load(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open snapshot file: %w", err)
	}
	defer f.Close()
	r := bufio.NewReader(f)

	var dim, n uint32
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return fmt.Errorf("read dimensions: %w", err)
	}
	if int(dim) != m.dimensions {
		return fmt.Errorf("%w: snapshot has %d, store expects %d", ErrDimensionMismatch, dim, m.dimensions)
	}
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return fmt.Errorf("read count: %w", err)
	}
	entries := make(map[string]*models.ProfileEmbedding, n)
	buf := make([]byte, m.dimensions*4)
	for i := uint32(0); i < n; i++ {
		var idLen uint32
		if err := binary.Read(r, binary.LittleEndian, &idLen); err != nil {
			return fmt.Errorf("read id len: %w", err)
		}
		idBytes := make([]byte, idLen)
		if _, err := io.ReadFull(r, idBytes); err != nil {
			return fmt.Errorf("read id: %w", err)
		}
		var nanos int64
		if err := binary.Read(r, binary.LittleEndian, &nanos); err != nil {
			return fmt.Errorf("read timestamp: %w", err)
		}
		if _, err := io.ReadFull(r, buf); err != nil {
			return fmt.Errorf("read vector: %w", err)
		}
		id := string(idBytes)
		entries[id] = &models.ProfileEmbedding{
			UserID:    id,
			Vector:    bytesToFloat32Slice(buf),
			UpdatedAt: time.Unix(0, nanos).UTC(),
		}
	}

	m.mu.Lock()
	m.entries = entries
	m.mu.Unlock()
	return nil
}

// Close is a no-op for MemoryStore.
func (m *MemoryStore) Close() error {
	return nil
}
