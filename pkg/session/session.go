// Package session provides conversation continuity: session resolution,
// bounded turn windows, and append-only turn history.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/parley-ai/parley/pkg/kvstore"
	"github.com/parley-ai/parley/pkg/models"
)

const (
	sessionKeyPrefix = "session#"
	turnsKeyPrefix   = "turns#"
)

// DefaultTurnWindow bounds how much history is fed back into a pipeline run.
const DefaultTurnWindow = 10

// Adapter persists sessions and turns in the shared store.
type Adapter struct {
	store  kvstore.Store
	logger *slog.Logger
}

func NewAdapter(store kvstore.Store, logger *slog.Logger) *Adapter {
	return &Adapter{
		store:  store,
		logger: logger.With("module", "session"),
	}
}

// ResolveSession returns the provided session id, or mints a fresh one from
// the business, user and a random component. A minted id is unique per
// invocation, not per logical conversation; callers that want continuity must
// persist and resupply it.
func (a *Adapter) ResolveSession(ctx context.Context, businessID, userID, provided string) string {
	if provided != "" {
		return provided
	}

	sessionID := fmt.Sprintf("%s:%s:%s", businessID, userID, uuid.NewString())

	now := time.Now().UTC()
	record := kvstore.Record{
		"id":          sessionID,
		"business_id": businessID,
		"user_id":     userID,
		"resolved":    false,
		"created_at":  now.Format(time.RFC3339),
		"updated_at":  now.Format(time.RFC3339),
	}

	if err := a.store.Put(ctx, sessionKeyPrefix+sessionID, record); err != nil {
		a.logger.WarnContext(ctx, "Failed to persist new session", "session_id", sessionID, "error", err)
	}

	return sessionID
}

// LoadRecentTurns returns up to limit turns, most recent first. Failures
// degrade to an empty window.
func (a *Adapter) LoadRecentTurns(ctx context.Context, sessionID string, limit int) []models.Turn {
	if limit <= 0 {
		limit = DefaultTurnWindow
	}

	turns := a.readTurns(ctx, sessionID)

	sort.Slice(turns, func(i, j int) bool {
		return turns[i].Timestamp.After(turns[j].Timestamp)
	})

	if len(turns) > limit {
		turns = turns[:limit]
	}

	return turns
}

// AppendTurn adds one turn to the session history. Turns are never mutated or
// deleted; append is a read-modify-write on the stored list.
func (a *Adapter) AppendTurn(ctx context.Context, sessionID string, turn models.Turn) error {
	turns := a.readTurns(ctx, sessionID)
	turns = append(turns, turn)

	payload, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("failed to encode turns for %s: %w", sessionID, err)
	}

	var encoded []any
	if err := json.Unmarshal(payload, &encoded); err != nil {
		return fmt.Errorf("failed to encode turns for %s: %w", sessionID, err)
	}

	record := kvstore.Record{"turns": encoded}
	if err := a.store.Put(ctx, turnsKeyPrefix+sessionID, record); err != nil {
		return fmt.Errorf("failed to append turn to %s: %w", sessionID, err)
	}

	return nil
}

// MarkResolved flags the session closed after a successful autonomous run.
func (a *Adapter) MarkResolved(ctx context.Context, sessionID string, resolved bool) {
	key := sessionKeyPrefix + sessionID

	record, err := a.store.Get(ctx, key)
	if err != nil {
		if err != kvstore.ErrNotFound {
			a.logger.WarnContext(ctx, "Failed to load session for resolution", "session_id", sessionID, "error", err)
		}

		record = kvstore.Record{"id": sessionID}
	}

	record["resolved"] = resolved
	record["updated_at"] = time.Now().UTC().Format(time.RFC3339)

	if err := a.store.Put(ctx, key, record); err != nil {
		a.logger.WarnContext(ctx, "Failed to mark session resolved", "session_id", sessionID, "error", err)
	}
}

// OpenSessions lists unresolved sessions, used by the scheduled sweep.
func (a *Adapter) OpenSessions(ctx context.Context, limit int) ([]models.Session, error) {
	records, err := a.store.Query(ctx, sessionKeyPrefix, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}

	sessions := make([]models.Session, 0, len(records))

	for _, record := range records {
		if resolved, _ := record["resolved"].(bool); resolved {
			continue
		}

		sessions = append(sessions, decodeSession(record))
	}

	return sessions, nil
}

func (a *Adapter) readTurns(ctx context.Context, sessionID string) []models.Turn {
	record, err := a.store.Get(ctx, turnsKeyPrefix+sessionID)
	if err != nil {
		if err != kvstore.ErrNotFound {
			a.logger.WarnContext(ctx, "Turn history read failed, continuing with empty window",
				"session_id", sessionID, "error", err)
		}

		return nil
	}

	payload, err := json.Marshal(record["turns"])
	if err != nil {
		return nil
	}

	var turns []models.Turn
	if err := json.Unmarshal(payload, &turns); err != nil {
		return nil
	}

	return turns
}

func decodeSession(record kvstore.Record) models.Session {
	session := models.Session{}
	session.ID, _ = record["id"].(string)
	session.BusinessID, _ = record["business_id"].(string)
	session.UserID, _ = record["user_id"].(string)
	session.Resolved, _ = record["resolved"].(bool)

	if created, ok := record["created_at"].(string); ok {
		session.CreatedAt, _ = time.Parse(time.RFC3339, created)
	}

	if updated, ok := record["updated_at"].(string); ok {
		session.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	}

	return session
}
