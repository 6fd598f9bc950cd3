package models

import (
	"fmt"
	"time"
)

// DefaultMemoryAction is the action segment used for business memory when the
// caller does not scope the record further.
const DefaultMemoryAction = "general"

// MemoryRecord is one persisted memory entry. Records are overwritten
// wholesale on every write; callers that want accumulation must
// read-modify-write before storing.
type MemoryRecord struct {
	Fields    MemoryMap `json:"fields"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BusinessMemoryKey builds the persisted key for business-level memory.
// Other components read records at this exact shape, keep it stable.
func BusinessMemoryKey(businessID, businessType, action string) string {
	if action == "" {
		action = DefaultMemoryAction
	}

	return fmt.Sprintf("%s#%s#%s", businessID, businessType, action)
}

// UserMemoryKey builds the persisted key for per-user-per-channel memory.
func UserMemoryKey(businessID, userID, platform string) string {
	return fmt.Sprintf("%s#%s#%s", businessID, userID, platform)
}

// UserMemoryPrefix is the key prefix shared by every channel record for one
// (business, user) pair, used for cross-channel queries.
func UserMemoryPrefix(businessID, userID string) string {
	return fmt.Sprintf("%s#%s#", businessID, userID)
}
