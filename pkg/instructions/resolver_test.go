package instructions

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-ai/parley/pkg/kvstore"
	"github.com/parley-ai/parley/pkg/kvstore/file"
	"github.com/parley-ai/parley/pkg/models"
	"github.com/parley-ai/parley/pkg/testutil"
)

func newTestResolver(t *testing.T) (*Resolver, kvstore.Store) {
	t.Helper()

	store := file.NewStore(t.TempDir())

	return NewResolver(store, slog.Default()), store
}

// putGroup stores a group of instructions under one explicit lookup key,
// bypassing Install's by-key grouping so tests can stage mis-keyed content.
func putGroup(t *testing.T, store kvstore.Store, key string, group []models.Instruction) {
	t.Helper()

	payload, err := json.Marshal(group)
	require.NoError(t, err)

	var encoded []any

	require.NoError(t, json.Unmarshal(payload, &encoded))
	require.NoError(t, store.Put(context.Background(), KeyPrefix+key, kvstore.Record{"instructions": encoded}))
}

func TestResolver_ExactBusinessTypeMatchWins(t *testing.T) {
	resolver, store := newTestResolver(t)
	ctx := context.Background()

	putGroup(t, store, models.InstructionKey("restaurant", "client"), []models.Instruction{
		testutil.CreateTestInstruction(testutil.WithBody("restaurant specific")),
	})
	putGroup(t, store, models.InstructionKey(models.GeneralBusinessType, "client"), []models.Instruction{
		testutil.CreateTestInstruction(testutil.WithBody("general fallback")),
	})

	resolved := resolver.Resolve(ctx, models.RoleNewCustomer, "restaurant")

	require.Len(t, resolved, 1)
	assert.Equal(t, "restaurant specific", resolved[0].Body)
}

func TestResolver_FallsBackToGeneralBusinessType(t *testing.T) {
	resolver, store := newTestResolver(t)
	ctx := context.Background()

	putGroup(t, store, models.InstructionKey(models.GeneralBusinessType, "client"), []models.Instruction{
		testutil.CreateTestInstruction(testutil.WithBody("general fallback")),
	})

	resolved := resolver.Resolve(ctx, models.RoleNewCustomer, "barbershop")

	require.Len(t, resolved, 1)
	assert.Equal(t, "general fallback", resolved[0].Body)
}

func TestResolver_FallsBackToBuiltin(t *testing.T) {
	resolver, _ := newTestResolver(t)

	resolved := resolver.Resolve(context.Background(), models.RoleNewCustomer, "barbershop")

	require.Len(t, resolved, 1)
	assert.Equal(t, "client", resolved[0].Role)
	assert.False(t, resolved[0].Capabilities.CanAccessAllData)
	assert.NotEmpty(t, resolved[0].Body)
}

func TestResolver_BuiltinOperatorGrantsFullAccess(t *testing.T) {
	resolver, _ := newTestResolver(t)

	resolved := resolver.Resolve(context.Background(), models.RoleOperator, "barbershop")

	require.Len(t, resolved, 1)
	assert.Equal(t, "operator", resolved[0].Role)
	assert.True(t, resolved[0].Capabilities.CanAccessAllData)
	assert.Equal(t, "terse", resolved[0].Capabilities.ResponseStyle)
}

func TestResolver_VisibilityFilterStripsSensitiveBodies(t *testing.T) {
	resolver, store := newTestResolver(t)
	ctx := context.Background()

	putGroup(t, store, models.InstructionKey("restaurant", "client"), []models.Instruction{
		testutil.CreateTestInstruction(testutil.WithBody("Help with reservations.")),
		testutil.CreateTestInstruction(testutil.WithBody("Include the customer's Personal-Data summary.")),
		testutil.CreateTestInstruction(testutil.WithBody("Escalate to the shift coordinator when unsure.")),
	})

	resolved := resolver.Resolve(ctx, models.RoleExistingCustomer, "restaurant")

	require.Len(t, resolved, 1)
	assert.Equal(t, "Help with reservations.", resolved[0].Body)
}

func TestResolver_FilterRunsOnFinalRoleEvenForStoredOperatorContent(t *testing.T) {
	resolver, store := newTestResolver(t)
	ctx := context.Background()

	// A mis-keyed pack stored operator instructions under the client key.
	// The filter still strips them for a customer role.
	operatorEntry := testutil.CreateTestInstruction(testutil.WithOperatorRole(),
		testutil.WithBody("Operator-only playbook."))

	putGroup(t, store, models.InstructionKey("restaurant", "client"), []models.Instruction{
		testutil.CreateTestInstruction(testutil.WithBody("Help with reservations.")),
		operatorEntry,
	})

	resolved := resolver.Resolve(ctx, models.RoleNewCustomer, "restaurant")

	require.Len(t, resolved, 1)
	assert.Equal(t, "Help with reservations.", resolved[0].Body)
}

func TestResolver_OperatorSeesSensitiveContentUnfiltered(t *testing.T) {
	resolver, store := newTestResolver(t)
	ctx := context.Background()

	putGroup(t, store, models.InstructionKey("restaurant", "operator"), []models.Instruction{
		testutil.CreateTestInstruction(testutil.WithOperatorRole(),
			testutil.WithBody("Full-History export steps. Internal-only.")),
	})

	resolved := resolver.Resolve(ctx, models.RoleOperator, "restaurant")

	require.Len(t, resolved, 1)
	assert.Contains(t, resolved[0].Body, "Full-History")
}

func TestContainsSensitiveMarker(t *testing.T) {
	assert.True(t, containsSensitiveMarker("Contains ADMIN notes"))
	assert.True(t, containsSensitiveMarker("internal-only runbook"))
	assert.True(t, containsSensitiveMarker("share Full-History"))
	assert.False(t, containsSensitiveMarker("booking fee waived"))
	assert.False(t, containsSensitiveMarker(""))
}
