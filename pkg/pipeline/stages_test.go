package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/parley-ai/parley/pkg/autonomous"
	"github.com/parley-ai/parley/pkg/completion"
	"github.com/parley-ai/parley/pkg/instructions"
	"github.com/parley-ai/parley/pkg/intent"
	"github.com/parley-ai/parley/pkg/kvstore"
	"github.com/parley-ai/parley/pkg/kvstore/file"
	"github.com/parley-ai/parley/pkg/memory"
	"github.com/parley-ai/parley/pkg/mocks"
	"github.com/parley-ai/parley/pkg/models"
	"github.com/parley-ai/parley/pkg/resources"
	"github.com/parley-ai/parley/pkg/session"
	"github.com/parley-ai/parley/pkg/testutil"
)

type stagesFixture struct {
	stages      *Stages
	store       kvstore.Store
	completions *completion.Mock
	broadcaster *mocks.MockBroadcaster
}

func newStagesFixture(t *testing.T) *stagesFixture {
	t.Helper()

	logger := slog.Default()
	store := file.NewStore(t.TempDir())
	completions := &completion.Mock{}
	sessions := session.NewAdapter(store, logger)

	broadcaster := &mocks.MockBroadcaster{}
	broadcaster.On("Broadcast", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return()

	executor := autonomous.NewExecutor(
		resources.NewClient(logger),
		completions,
		store,
		&autonomous.LogSender{Logger: logger},
		sessions,
		broadcaster,
		logger,
	)

	return &stagesFixture{
		stages: &Stages{
			Store:        store,
			Memory:       memory.NewManager(store, logger),
			Instructions: instructions.NewResolver(store, logger),
			Sessions:     sessions,
			Classifier:   intent.NewClassifier(completions, logger),
			Autonomous:   executor,
			Completions:  completions,
			Logger:       logger,
		},
		store:       store,
		completions: completions,
		broadcaster: broadcaster,
	}
}

func testTime() time.Time {
	return time.Date(2026, 8, 26, 14, 0, 0, 0, time.UTC)
}

func seedBusiness(t *testing.T, store kvstore.Store, business *models.BusinessProfile) {
	t.Helper()

	payload, err := json.Marshal(business)
	require.NoError(t, err)

	var record kvstore.Record

	require.NoError(t, json.Unmarshal(payload, &record))
	require.NoError(t, store.Put(context.Background(), businessKeyPrefix+business.ID, record))
}

func TestIdentify_OperatorSourcePinsOperatorRole(t *testing.T) {
	f := newStagesFixture(t)

	pc := testutil.CreateTestContext(testutil.WithOperatorSource())
	pc.Role = ""
	pc.Business = nil

	patch, err := f.stages.Identify().Run(context.Background(), pc)
	require.NoError(t, err)

	assert.Equal(t, models.RoleOperator, patch.Role)
	assert.NotEmpty(t, patch.SessionID)
	require.NotNil(t, patch.Time)
	assert.NotEmpty(t, patch.Time.Date)
}

func TestIdentify_MissingUserIsAnonymous(t *testing.T) {
	f := newStagesFixture(t)

	pc := testutil.CreateTestContext()
	pc.UserID = ""
	pc.Role = ""

	patch, err := f.stages.Identify().Run(context.Background(), pc)
	require.NoError(t, err)

	assert.Equal(t, models.RoleAnonymous, patch.Role)
}

func TestIdentify_UnknownBusinessGetsMinimalProfile(t *testing.T) {
	f := newStagesFixture(t)

	pc := testutil.CreateTestContext()
	pc.Business = nil

	patch, err := f.stages.Identify().Run(context.Background(), pc)
	require.NoError(t, err)

	require.NotNil(t, patch.Business)
	assert.Equal(t, pc.BusinessID, patch.Business.ID)
	assert.Equal(t, models.GeneralBusinessType, patch.Business.Type)
}

func TestIdentify_StoredBusinessProfileLoaded(t *testing.T) {
	f := newStagesFixture(t)

	business := testutil.CreateTestBusiness()
	seedBusiness(t, f.store, business)

	pc := testutil.CreateTestContext()
	pc.BusinessID = business.ID
	pc.Business = nil

	patch, err := f.stages.Identify().Run(context.Background(), pc)
	require.NoError(t, err)

	require.NotNil(t, patch.Business)
	assert.Equal(t, business.Name, patch.Business.Name)
	assert.Equal(t, "restaurant", patch.Business.Type)
}

// A user known on telegram writes in on whatsapp for the first time: the
// other-channel snapshot is surfaced and the role upgrades to
// existing-customer.
func TestLoadMemory_RecognizesUserAcrossChannels(t *testing.T) {
	f := newStagesFixture(t)
	ctx := context.Background()

	pc := testutil.CreateTestContext()
	f.stages.Memory.WriteUserMemory(ctx, pc.BusinessID, pc.UserID, "telegram", models.MemoryMap{
		"name": "Ana",
	})

	patch, err := f.stages.LoadMemory().Run(ctx, pc)
	require.NoError(t, err)

	assert.Equal(t, models.RoleExistingCustomer, patch.Role)
	require.Contains(t, patch.ChannelMemories, "telegram")
	assert.Equal(t, "Ana", patch.ChannelMemories["telegram"]["name"])
	assert.NotContains(t, patch.ChannelMemories, pc.Channel, "current channel is not an other-channel")
}

func TestLoadMemory_UnknownUserStaysNewCustomer(t *testing.T) {
	f := newStagesFixture(t)

	pc := testutil.CreateTestContext()

	patch, err := f.stages.LoadMemory().Run(context.Background(), pc)
	require.NoError(t, err)

	assert.Equal(t, models.RoleNewCustomer, patch.Role)
	assert.Empty(t, patch.UserMemory)
}

func TestLoadMemory_OperatorRoleIsNeverDowngraded(t *testing.T) {
	f := newStagesFixture(t)

	pc := testutil.CreateTestContext(testutil.WithOperatorSource())
	pc.UserID = "op-1"

	patch, err := f.stages.LoadMemory().Run(context.Background(), pc)
	require.NoError(t, err)

	assert.Empty(t, patch.Role, "operator role set during identification stays")
}

func TestResolveInstructions_EmptyResultFlagsEscalation(t *testing.T) {
	f := newStagesFixture(t)

	// Stored client instructions that are all operator-only after the
	// visibility filter leave nothing visible.
	group := []models.Instruction{
		testutil.CreateTestInstruction(testutil.WithBody("internal-only runbook")),
	}
	payload, err := json.Marshal(group)
	require.NoError(t, err)

	var encoded []any

	require.NoError(t, json.Unmarshal(payload, &encoded))
	require.NoError(t, f.store.Put(context.Background(),
		instructions.KeyPrefix+models.InstructionKey("restaurant", "client"),
		kvstore.Record{"instructions": encoded}))

	pc := testutil.CreateTestContext()

	patch, err := f.stages.ResolveInstructions().Run(context.Background(), pc)
	require.NoError(t, err)

	assert.Empty(t, patch.Instructions)
	assert.True(t, patch.Flags[models.FlagNeedsHumanApproval])
}

func TestClassifyIntent_HighConfidenceAutonomousIntentFlagsRun(t *testing.T) {
	f := newStagesFixture(t)
	f.completions.Responses = []string{
		`{"action": "book", "category": "booking", "confidence": 0.9, "canHandleAutonomously": true, "requiresHumanApproval": false}`,
	}

	pc := testutil.CreateTestContext()
	pc.Instructions = []models.Instruction{
		testutil.CreateTestInstruction(testutil.WithSteps(testutil.CreateTestStep("book"))),
	}

	patch, err := f.stages.ClassifyIntent().Run(context.Background(), pc)
	require.NoError(t, err)

	require.NotNil(t, patch.Intent)
	assert.True(t, patch.Flags[models.FlagNeedsAutonomousRun])
	assert.False(t, patch.Flags[models.FlagNeedsHumanApproval])
}

func TestClassifyIntent_LowConfidenceRequiresApproval(t *testing.T) {
	f := newStagesFixture(t)
	f.completions.Responses = []string{
		`{"category": "booking", "confidence": 0.4, "canHandleAutonomously": true, "requiresHumanApproval": false}`,
	}

	pc := testutil.CreateTestContext()
	pc.Instructions = []models.Instruction{
		testutil.CreateTestInstruction(testutil.WithSteps(testutil.CreateTestStep("book"))),
	}

	patch, err := f.stages.ClassifyIntent().Run(context.Background(), pc)
	require.NoError(t, err)

	assert.False(t, patch.Flags[models.FlagNeedsAutonomousRun])
	assert.True(t, patch.Flags[models.FlagNeedsHumanApproval])
}

func TestClassifyIntent_NoWorkflowStepsBlocksAutonomy(t *testing.T) {
	f := newStagesFixture(t)
	f.completions.Responses = []string{
		`{"category": "booking", "confidence": 0.95, "canHandleAutonomously": true, "requiresHumanApproval": false}`,
	}

	pc := testutil.CreateTestContext()
	pc.Instructions = []models.Instruction{testutil.CreateTestInstruction()}

	patch, err := f.stages.ClassifyIntent().Run(context.Background(), pc)
	require.NoError(t, err)

	assert.False(t, patch.Flags[models.FlagNeedsAutonomousRun])
}

func TestClassifyIntent_ClassifierFailureFallsBackToEscalation(t *testing.T) {
	f := newStagesFixture(t)
	// No scripted response: classification errors and downgrades.

	pc := testutil.CreateTestContext()

	patch, err := f.stages.ClassifyIntent().Run(context.Background(), pc)
	require.NoError(t, err)

	require.NotNil(t, patch.Intent)
	assert.Equal(t, models.FallbackIntentCategory, patch.Intent.Category)
	assert.True(t, patch.Flags[models.FlagNeedsHumanApproval])
	assert.False(t, patch.Flags[models.FlagNeedsAutonomousRun])
}

func TestRunAutonomous_SkippedWithoutFlag(t *testing.T) {
	f := newStagesFixture(t)

	pc := testutil.CreateTestContext()
	pc.Instructions = []models.Instruction{
		testutil.CreateTestInstruction(testutil.WithSteps(testutil.CreateTestStep("book"))),
	}

	patch, err := f.stages.RunAutonomous().Run(context.Background(), pc)
	require.NoError(t, err)

	assert.Nil(t, patch.Autonomous)
	f.broadcaster.AssertNotCalled(t, "Broadcast", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRunAutonomous_ExecutesFlaggedWorkflow(t *testing.T) {
	f := newStagesFixture(t)
	f.completions.Responses = []string{"Booked!"}

	pc := testutil.CreateTestContext()
	pc.SessionID = "biz:user:s1"
	pc.Time = models.NewTimeContext(testTime(), 9, 18)
	pc.Flags = map[string]bool{models.FlagNeedsAutonomousRun: true}
	pc.Instructions = []models.Instruction{
		testutil.CreateTestInstruction(testutil.WithSteps(testutil.CreateTestStep("book"))),
	}

	patch, err := f.stages.RunAutonomous().Run(context.Background(), pc)
	require.NoError(t, err)

	require.NotNil(t, patch.Autonomous)
	assert.True(t, patch.Autonomous.Success)
	assert.Empty(t, patch.Actions, "the terminal stage owns the action list")
}

func TestSynthesize_AutonomousResponseWins(t *testing.T) {
	f := newStagesFixture(t)

	pc := testutil.CreateTestContext()
	pc.Autonomous = &models.AutonomousActionResult{
		Success:       true,
		ShouldRespond: true,
		Response:      "Your table is booked.",
		WorkflowResults: []models.WorkflowStepResult{
			{Step: 1, Action: "book", Success: true},
		},
		Notification: "Autonomous workflow completed: 1/1 steps succeeded",
	}

	patch, err := f.stages.Synthesize().Run(context.Background(), pc)
	require.NoError(t, err)

	assert.Equal(t, "Your table is booked.", patch.Reply)
	assert.Empty(t, f.completions.Prompts, "no completion call when autonomous already responded")

	require.Len(t, patch.Actions, 1)
	assert.Equal(t, "autonomous_workflow", patch.Actions[0].Type)
	assert.Equal(t, models.ActionStatusSuccess, patch.Actions[0].Status)
	assert.Equal(t, 1, patch.Actions[0].Details["steps"])
}

func TestSynthesize_FailedAutonomousRunRecordsFailedAction(t *testing.T) {
	f := newStagesFixture(t)

	pc := testutil.CreateTestContext()
	pc.Autonomous = &models.AutonomousActionResult{
		Success:       false,
		ShouldRespond: true,
		Response:      "I'm sorry, I wasn't able to complete that for you.",
		WorkflowResults: []models.WorkflowStepResult{
			{Step: 1, Action: "book", Success: false},
		},
	}

	patch, err := f.stages.Synthesize().Run(context.Background(), pc)
	require.NoError(t, err)

	assert.Equal(t, pc.Autonomous.Response, patch.Reply)
	require.Len(t, patch.Actions, 1)
	assert.Equal(t, "autonomous_workflow", patch.Actions[0].Type)
	assert.Equal(t, models.ActionStatusFailed, patch.Actions[0].Status)
}

func TestSynthesize_ApprovalFlagEscalates(t *testing.T) {
	f := newStagesFixture(t)

	pc := testutil.CreateTestContext()
	pc.Flags = map[string]bool{models.FlagNeedsHumanApproval: true}
	pc.Instructions = []models.Instruction{testutil.CreateTestInstruction()}

	patch, err := f.stages.Synthesize().Run(context.Background(), pc)
	require.NoError(t, err)

	assert.NotEmpty(t, patch.Reply)
	require.Len(t, patch.Actions, 1)
	assert.Equal(t, "escalate_to_human", patch.Actions[0].Type)
	assert.Equal(t, models.ActionStatusPending, patch.Actions[0].Status)
}

func TestSynthesize_CompletionReplyHappyPath(t *testing.T) {
	f := newStagesFixture(t)
	f.completions.Responses = []string{"  We have a table at 19:00.  "}

	pc := testutil.CreateTestContext()
	pc.Time = models.NewTimeContext(testTime(), 9, 18)
	pc.Instructions = []models.Instruction{testutil.CreateTestInstruction()}

	patch, err := f.stages.Synthesize().Run(context.Background(), pc)
	require.NoError(t, err)

	assert.Equal(t, "We have a table at 19:00.", patch.Reply)
	require.Len(t, patch.Actions, 1)
	assert.Equal(t, "reply", patch.Actions[0].Type)
	assert.Equal(t, models.ActionStatusSuccess, patch.Actions[0].Status)

	require.Len(t, f.completions.Prompts, 1)
	assert.Contains(t, f.completions.Prompts[0], pc.Business.Name)
	assert.Contains(t, f.completions.Prompts[0], pc.Message)
}

func TestSynthesize_CompletionFailureUsesFallbackReply(t *testing.T) {
	f := newStagesFixture(t)
	// No scripted response: the completion call fails.

	pc := testutil.CreateTestContext()
	pc.Time = models.NewTimeContext(testTime(), 9, 18)
	pc.Instructions = []models.Instruction{testutil.CreateTestInstruction()}

	patch, err := f.stages.Synthesize().Run(context.Background(), pc)
	require.NoError(t, err)

	assert.NotEmpty(t, patch.Reply)
	require.Len(t, patch.Actions, 1)
	assert.Equal(t, models.ActionStatusFailed, patch.Actions[0].Status)
}

func TestPersistMemory_WritesTurnsAndUserSnapshot(t *testing.T) {
	f := newStagesFixture(t)
	ctx := context.Background()

	pc := testutil.CreateTestContext()
	pc.SessionID = "biz:user:s1"
	pc.Reply = "See you at 19:00!"
	pc.Intent = &models.Intent{Category: "booking"}

	_, err := f.stages.PersistMemory().Run(ctx, pc)
	require.NoError(t, err)

	turns := f.stages.Sessions.LoadRecentTurns(ctx, pc.SessionID, 10)
	require.Len(t, turns, 2)

	snapshot := f.stages.Memory.UserMemory(ctx, pc.BusinessID, pc.UserID, pc.Channel)
	assert.Equal(t, pc.Channel, snapshot["last_channel"])
	assert.Equal(t, "booking", snapshot["last_intent"])
	assert.Equal(t, pc.SessionID, snapshot["last_session_id"])
}

// A run without an inbound message (the scheduled refresh path) must not
// erase the last message recorded by a real conversation.
func TestPersistMemory_EmptyMessageKeepsStoredLastMessage(t *testing.T) {
	f := newStagesFixture(t)
	ctx := context.Background()

	pc := testutil.CreateTestContext()
	pc.Message = ""
	pc.SessionID = "biz:user:s1"
	pc.UserMemory = models.MemoryMap{
		"name":         "Ana",
		"last_message": "Do you have a table for two tonight?",
	}

	_, err := f.stages.PersistMemory().Run(ctx, pc)
	require.NoError(t, err)

	snapshot := f.stages.Memory.UserMemory(ctx, pc.BusinessID, pc.UserID, pc.Channel)
	assert.Equal(t, "Do you have a table for two tonight?", snapshot["last_message"])
	assert.Contains(t, snapshot, "last_seen")
}

func TestPersistMemory_OperatorConversationsLeaveNoUserSnapshot(t *testing.T) {
	f := newStagesFixture(t)
	ctx := context.Background()

	pc := testutil.CreateTestContext(testutil.WithOperatorSource())
	pc.UserID = "op-1"
	pc.SessionID = "biz:op:s1"
	pc.Reply = "Done."

	_, err := f.stages.PersistMemory().Run(ctx, pc)
	require.NoError(t, err)

	snapshot := f.stages.Memory.UserMemory(ctx, pc.BusinessID, "op-1", "console")
	assert.Empty(t, snapshot)
}

func TestGatherFrontendData_FlagsRoundTripWhenNoData(t *testing.T) {
	f := newStagesFixture(t)

	pc := testutil.CreateTestContext(testutil.WithOperatorSource())

	patch, err := f.stages.GatherFrontendData().Run(context.Background(), pc)
	require.NoError(t, err)
	assert.True(t, patch.Flags[models.FlagNeedsFrontendRoundTrip])

	pc.Queries = []models.DataQuery{{Query: "today's bookings", Result: []any{}}}

	patch, err = f.stages.GatherFrontendData().Run(context.Background(), pc)
	require.NoError(t, err)
	assert.Empty(t, patch.Flags)
}
