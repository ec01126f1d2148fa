package dedup

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type record struct {
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// MemoryStore keeps records in process. With a snapshot path set, live records
// are written to a JSON file after every change and reloaded on start, so a
// restart inside the expiry window does not re-alert.
type MemoryStore struct {
	mutex    sync.Mutex
	records  map[string]record
	snapshot string
	log      zerolog.Logger
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]record),
		log:     zerolog.Nop(),
		now:     time.Now,
	}
}

// NewFileStore returns a MemoryStore persisted to path.
func NewFileStore(path string, log zerolog.Logger) (*MemoryStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create dedup snapshot directory %s: %w", filepath.Dir(path), err)
	}
	m := NewMemoryStore()
	m.snapshot = path
	m.log = log
	m.load()
	return m, nil
}

func (m *MemoryStore) SetIfAbsent(_ context.Context, key string, value string, ttl time.Duration) (bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	now := m.now()
	if r, ok := m.records[key]; ok && now.Before(r.ExpiresAt) {
		return false, nil
	}
	m.evict()
	m.records[key] = record{Value: value, ExpiresAt: now.Add(ttl)}
	m.save()
	return true, nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, ok := m.records[key]; !ok {
		return nil
	}
	delete(m.records, key)
	m.save()
	return nil
}

func (m *MemoryStore) DeletePrefix(_ context.Context, prefix string) (int, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	n := 0
	for k := range m.records {
		if strings.HasPrefix(k, prefix) {
			delete(m.records, k)
			n++
		}
	}
	if n > 0 {
		m.save()
	}
	return n, nil
}

// Len reports the number of live records.
func (m *MemoryStore) Len() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.evict()
	return len(m.records)
}

func (m *MemoryStore) Close() error {
	return nil
}

func (m *MemoryStore) evict() {
	now := m.now()
	for k, r := range m.records {
		if !now.Before(r.ExpiresAt) {
			delete(m.records, k)
		}
	}
}

func (m *MemoryStore) load() {
	data, err := os.ReadFile(m.snapshot)
	if err != nil {
		if os.IsNotExist(err) {
			m.log.Info().Str("path", m.snapshot).Msg("dedup snapshot not found, starting fresh")
			return
		}
		m.log.Warn().Err(err).Str("path", m.snapshot).Msg("failed to read dedup snapshot, starting fresh")
		return
	}

	var loaded map[string]record
	if err := json.Unmarshal(data, &loaded); err != nil {
		m.log.Warn().Err(err).Msg("failed to unmarshal dedup snapshot, starting fresh")
		return
	}
	m.records = loaded
	m.evict()
	m.log.Info().Int("records", len(m.records)).Msg("loaded dedup snapshot")
}

// save must be called with the mutex held.
func (m *MemoryStore) save() {
	if m.snapshot == "" {
		return
	}
	m.evict()

	data, err := json.MarshalIndent(m.records, "", "  ")
	if err != nil {
		m.log.Error().Err(err).Msg("failed to marshal dedup snapshot")
		return
	}
	if err := os.WriteFile(m.snapshot, data, 0o644); err != nil {
		m.log.Error().Err(err).Str("path", m.snapshot).Msg("failed to write dedup snapshot")
	}
}
