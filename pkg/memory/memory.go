// Package memory implements the two-tier dynamic memory store: business-level
// records keyed by business+type+action and user-level records keyed by
// business+user+channel.
package memory

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/parley-ai/parley/pkg/kvstore"
	"github.com/parley-ai/parley/pkg/models"
)

// Manager reads and writes memory records. Memory is best-effort: reads
// degrade to empty snapshots and writes are swallowed with a log line, so the
// reply path is never blocked by the store.
type Manager struct {
	store  kvstore.Store
	logger *slog.Logger
}

func NewManager(store kvstore.Store, logger *slog.Logger) *Manager {
	return &Manager{
		store:  store,
		logger: logger.With("module", "memory"),
	}
}

// BusinessMemory returns the stored business memory, or an empty map when
// absent or unreadable.
func (m *Manager) BusinessMemory(ctx context.Context, businessID, businessType, action string) models.MemoryMap {
	key := models.BusinessMemoryKey(businessID, businessType, action)

	return m.read(ctx, key)
}

// UserMemory returns the stored memory for one user on one channel, or an
// empty map when absent or unreadable.
func (m *Manager) UserMemory(ctx context.Context, businessID, userID, channel string) models.MemoryMap {
	key := models.UserMemoryKey(businessID, userID, channel)

	return m.read(ctx, key)
}

// AllChannels returns every user-memory snapshot for the (business, user)
// pair keyed by channel, regardless of which channel the user is currently
// on. Used to recognize a user who switches channels.
func (m *Manager) AllChannels(ctx context.Context, businessID, userID string) map[string]models.MemoryMap {
	prefix := models.UserMemoryPrefix(businessID, userID)

	records, err := m.store.Query(ctx, prefix, 0)
	if err != nil {
		m.logger.WarnContext(ctx, "Cross-channel memory query failed, continuing without it",
			"business_id", businessID, "user_id", userID, "error", err)

		return map[string]models.MemoryMap{}
	}

	snapshots := make(map[string]models.MemoryMap, len(records))

	for key, record := range records {
		channel := strings.TrimPrefix(key, prefix)
		if channel == "" {
			continue
		}

		snapshots[channel] = recordFields(record)
	}

	return snapshots
}

// WriteBusinessMemory overwrites the business memory record with a sanitized
// copy of fields. Failures are logged, never propagated.
func (m *Manager) WriteBusinessMemory(ctx context.Context, businessID, businessType, action string, fields models.MemoryMap) {
	key := models.BusinessMemoryKey(businessID, businessType, action)
	m.write(ctx, key, fields)
}

// WriteUserMemory overwrites one user-channel memory record with a sanitized
// copy of fields. Failures are logged, never propagated.
func (m *Manager) WriteUserMemory(ctx context.Context, businessID, userID, channel string, fields models.MemoryMap) {
	key := models.UserMemoryKey(businessID, userID, channel)
	m.write(ctx, key, fields)
}

func (m *Manager) read(ctx context.Context, key string) models.MemoryMap {
	record, err := m.store.Get(ctx, key)
	if err != nil {
		if err != kvstore.ErrNotFound {
			m.logger.WarnContext(ctx, "Memory read failed, continuing with empty snapshot",
				"key", key, "error", err)
		}

		return models.MemoryMap{}
	}

	return recordFields(record)
}

func (m *Manager) write(ctx context.Context, key string, fields models.MemoryMap) {
	sanitized := Sanitize(fields)

	record := kvstore.Record{
		"fields":     map[string]any(sanitized),
		"updated_at": time.Now().UTC().Format(time.RFC3339),
	}

	if err := m.store.Put(ctx, key, record); err != nil {
		m.logger.WarnContext(ctx, "Memory write failed, record not updated this turn",
			"key", key, "error", err)
	}
}

func recordFields(record kvstore.Record) models.MemoryMap {
	fields, ok := record["fields"].(map[string]any)
	if !ok {
		return models.MemoryMap{}
	}

	return models.MemoryMap(fields)
}
