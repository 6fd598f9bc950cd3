package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/parley-ai/parley/pkg/autonomous"
	"github.com/parley-ai/parley/pkg/completion"
	"github.com/parley-ai/parley/pkg/instructions"
	"github.com/parley-ai/parley/pkg/intent"
	"github.com/parley-ai/parley/pkg/kvstore"
	"github.com/parley-ai/parley/pkg/memory"
	"github.com/parley-ai/parley/pkg/models"
	"github.com/parley-ai/parley/pkg/session"
)

// autonomyConfidenceThreshold gates the autonomous path: below it the intent
// is escalated regardless of what the classifier claims it can handle.
const autonomyConfidenceThreshold = 0.7

const businessKeyPrefix = "business#"

// Stages holds the collaborators the stage vocabulary is built from. Each
// method returns one Stage; pipeline variants pick and order them.
type Stages struct {
	Store        kvstore.Store
	Memory       *memory.Manager
	Instructions *instructions.Resolver
	Sessions     *session.Adapter
	Classifier   *intent.Classifier
	Autonomous   *autonomous.Executor
	Completions  completion.Service
	Logger       *slog.Logger
}

// Identify resolves the session, loads the recent turn window, derives the
// arrival-time facts, and pins the role for trusted sources. Customer roles
// are refined later once memory snapshots are available.
func (s *Stages) Identify() Stage {
	return Stage{
		Name: "identification",
		Run: func(ctx context.Context, pc *models.ProcessingContext) (models.ContextPatch, error) {
			patch := models.ContextPatch{}

			patch.SessionID = s.Sessions.ResolveSession(ctx, pc.BusinessID, pc.UserID, pc.SessionID)
			patch.History = s.Sessions.LoadRecentTurns(ctx, patch.SessionID, session.DefaultTurnWindow)

			business := pc.Business
			if business == nil {
				business = s.loadBusiness(ctx, pc.BusinessID)
			}

			patch.Business = business

			timeCtx := models.NewTimeContext(time.Now(), business.OpenHour, business.CloseHour)
			patch.Time = &timeCtx

			switch {
			case pc.Source == models.SourceOperatorConsole:
				patch.Role = models.RoleOperator
			case pc.UserID == "":
				patch.Role = models.RoleAnonymous
			default:
				patch.Role = models.RoleNewCustomer
			}

			return patch, nil
		},
	}
}

// LoadMemory reads the business snapshot, the current-channel user snapshot
// and every other-channel snapshot in parallel, joining before returning its
// patch. A user seen on any other channel is recognized as existing.
func (s *Stages) LoadMemory() Stage {
	return Stage{
		Name: "memory-load",
		Run: func(ctx context.Context, pc *models.ProcessingContext) (models.ContextPatch, error) {
			businessType := models.GeneralBusinessType
			if pc.Business != nil {
				businessType = pc.Business.Type
			}

			var (
				wg             sync.WaitGroup
				businessMemory models.MemoryMap
				userMemory     models.MemoryMap
				allChannels    map[string]models.MemoryMap
			)

			wg.Add(3)

			go func() {
				defer wg.Done()
				businessMemory = s.Memory.BusinessMemory(ctx, pc.BusinessID, businessType, models.DefaultMemoryAction)
			}()

			go func() {
				defer wg.Done()
				userMemory = s.Memory.UserMemory(ctx, pc.BusinessID, pc.UserID, pc.Channel)
			}()

			go func() {
				defer wg.Done()
				allChannels = s.Memory.AllChannels(ctx, pc.BusinessID, pc.UserID)
			}()

			wg.Wait()

			otherChannels := make(map[string]models.MemoryMap, len(allChannels))
			for channel, snapshot := range allChannels {
				if channel != pc.Channel {
					otherChannels[channel] = snapshot
				}
			}

			patch := models.ContextPatch{
				BusinessMemory:  businessMemory,
				UserMemory:      userMemory,
				ChannelMemories: otherChannels,
			}

			if pc.Role != models.RoleOperator && pc.UserID != "" {
				if len(userMemory) > 0 || anyNonEmpty(otherChannels) {
					patch.Role = models.RoleExistingCustomer
				} else {
					patch.Role = models.RoleNewCustomer
				}
			}

			return patch, nil
		},
	}
}

// ResolveInstructions selects behavioral instructions for the resolved role.
// An empty result is an escalation outcome, not an error.
func (s *Stages) ResolveInstructions() Stage {
	return Stage{
		Name: "instruction-resolution",
		Run: func(ctx context.Context, pc *models.ProcessingContext) (models.ContextPatch, error) {
			businessType := models.GeneralBusinessType
			if pc.Business != nil {
				businessType = pc.Business.Type
			}

			resolved := s.Instructions.Resolve(ctx, pc.Role, businessType)

			patch := models.ContextPatch{Instructions: resolved}

			if len(resolved) == 0 {
				patch.Flags = map[string]bool{models.FlagNeedsHumanApproval: true}
			}

			return patch, nil
		},
	}
}

// ClassifyIntent runs only on the externally-triggered path. It decides
// whether the autonomous workflow may run and never fails the pipeline.
func (s *Stages) ClassifyIntent() Stage {
	return Stage{
		Name: "intent-classification",
		Run: func(ctx context.Context, pc *models.ProcessingContext) (models.ContextPatch, error) {
			businessType := models.GeneralBusinessType
			if pc.Business != nil {
				businessType = pc.Business.Type
			}

			classified := s.Classifier.Classify(ctx, pc.Message, businessType)

			flags := map[string]bool{}

			autonomyAllowed := classified.CanHandleAutonomously &&
				!classified.RequiresHumanApproval &&
				classified.Confidence >= autonomyConfidenceThreshold &&
				hasWorkflowSteps(pc.Instructions)

			flags[models.FlagNeedsAutonomousRun] = autonomyAllowed

			if classified.RequiresHumanApproval || classified.Confidence < autonomyConfidenceThreshold {
				flags[models.FlagNeedsHumanApproval] = true
			}

			return models.ContextPatch{Intent: &classified, Flags: flags}, nil
		},
	}
}

// RunAutonomous executes the matched instruction's workflow when the
// classification stage flagged the run. The gate is a static branch inside
// the stage, not a skipped stage.
func (s *Stages) RunAutonomous() Stage {
	return Stage{
		Name: "autonomous-workflow",
		Run: func(ctx context.Context, pc *models.ProcessingContext) (models.ContextPatch, error) {
			if !pc.Flags[models.FlagNeedsAutonomousRun] {
				return models.ContextPatch{}, nil
			}

			instruction, ok := firstWithSteps(pc.Instructions)
			if !ok {
				return models.ContextPatch{}, nil
			}

			wctx := &autonomous.Context{
				BusinessID: pc.BusinessID,
				LocationID: pc.LocationID,
				CustomerID: pc.UserID,
				SessionID:  pc.SessionID,
				Channel:    pc.Channel,
				Date:       pc.Time.Date,
				Time:       pc.Time.Time,
				Data:       map[string]any{"message": pc.Message},
			}

			result := s.Autonomous.Execute(ctx, instruction, wctx)

			return models.ContextPatch{Autonomous: &result}, nil
		},
	}
}

// GatherFrontendData is the operator path's data-gathering stage. The console
// supplies data snapshots with the request; when none arrived, the stage
// flags a frontend round trip instead of guessing.
func (s *Stages) GatherFrontendData() Stage {
	return Stage{
		Name: "frontend-data",
		Run: func(_ context.Context, pc *models.ProcessingContext) (models.ContextPatch, error) {
			if len(pc.Queries) > 0 {
				return models.ContextPatch{}, nil
			}

			return models.ContextPatch{
				Flags: map[string]bool{models.FlagNeedsFrontendRoundTrip: true},
			}, nil
		},
	}
}

// Synthesize is the terminal stage: the only one that writes the reply and
// the action list.
func (s *Stages) Synthesize() Stage {
	return Stage{
		Name: "response-synthesis",
		Run: func(ctx context.Context, pc *models.ProcessingContext) (models.ContextPatch, error) {
			// An autonomous run that produced a response owns the reply and
			// the action record for its workflow.
			if pc.Autonomous != nil && pc.Autonomous.ShouldRespond && pc.Autonomous.Response != "" {
				status := models.ActionStatusSuccess
				if !pc.Autonomous.Success {
					status = models.ActionStatusFailed
				}

				return models.ContextPatch{
					Reply: pc.Autonomous.Response,
					Actions: []models.Action{{
						Type:   "autonomous_workflow",
						Status: status,
						Details: map[string]any{
							"steps":        len(pc.Autonomous.WorkflowResults),
							"notification": pc.Autonomous.Notification,
						},
					}},
				}, nil
			}

			if pc.Flags[models.FlagNeedsHumanApproval] || len(pc.Instructions) == 0 {
				return escalationPatch(pc), nil
			}

			reply, err := s.Completions.Complete(ctx, buildReplyPrompt(pc))
			if err != nil || strings.TrimSpace(reply) == "" {
				s.Logger.WarnContext(ctx, "Reply synthesis failed, using fallback reply", "error", err)

				return models.ContextPatch{
					Reply: FallbackReply(pc),
					Actions: []models.Action{{
						Type:   "reply",
						Status: models.ActionStatusFailed,
						Details: map[string]any{
							"reason": "completion unavailable",
						},
					}},
				}, nil
			}

			return models.ContextPatch{
				Reply: strings.TrimSpace(reply),
				Actions: []models.Action{{
					Type:   "reply",
					Status: models.ActionStatusSuccess,
				}},
			}, nil
		},
	}
}

// PersistMemory closes the run: it appends the turn pair to the session and
// writes refreshed, sanitized memory snapshots. Everything here is
// best-effort; the reply has already been decided.
func (s *Stages) PersistMemory() Stage {
	return Stage{
		Name: "memory-persist",
		Run: func(ctx context.Context, pc *models.ProcessingContext) (models.ContextPatch, error) {
			now := time.Now().UTC()

			if pc.Message != "" {
				if err := s.Sessions.AppendTurn(ctx, pc.SessionID, models.Turn{
					Content:   pc.Message,
					Role:      "user",
					Timestamp: now,
				}); err != nil {
					s.Logger.WarnContext(ctx, "Failed to append user turn", "error", err)
				}
			}

			if pc.Reply != "" {
				if err := s.Sessions.AppendTurn(ctx, pc.SessionID, models.Turn{
					Content:   pc.Reply,
					Role:      "assistant",
					Timestamp: now,
				}); err != nil {
					s.Logger.WarnContext(ctx, "Failed to append assistant turn", "error", err)
				}
			}

			if pc.Role != models.RoleOperator && pc.UserID != "" {
				// Read-modify-write: the store overwrites wholesale, so
				// accumulation has to happen here.
				snapshot := models.MemoryMap{}
				for k, v := range pc.UserMemory {
					snapshot[k] = v
				}

				snapshot["last_seen"] = now.Format(time.RFC3339)
				snapshot["last_channel"] = pc.Channel
				snapshot["last_session_id"] = pc.SessionID
				if pc.Message != "" {
					snapshot["last_message"] = pc.Message
				}
				if pc.Intent != nil {
					snapshot["last_intent"] = pc.Intent.Category
				}

				s.Memory.WriteUserMemory(ctx, pc.BusinessID, pc.UserID, pc.Channel, snapshot)
			}

			return models.ContextPatch{}, nil
		},
	}
}

func (s *Stages) loadBusiness(ctx context.Context, businessID string) *models.BusinessProfile {
	fallback := &models.BusinessProfile{
		ID:        businessID,
		Name:      "",
		Type:      models.GeneralBusinessType,
		OpenHour:  9,
		CloseHour: 18,
	}

	record, err := s.Store.Get(ctx, businessKeyPrefix+businessID)
	if err != nil {
		if err != kvstore.ErrNotFound {
			s.Logger.WarnContext(ctx, "Business profile read failed, using minimal profile",
				"business_id", businessID, "error", err)
		}

		return fallback
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return fallback
	}

	var profile models.BusinessProfile
	if err := json.Unmarshal(payload, &profile); err != nil || profile.ID == "" {
		return fallback
	}

	if profile.CloseHour == 0 {
		profile.OpenHour, profile.CloseHour = fallback.OpenHour, fallback.CloseHour
	}

	return &profile
}

func escalationPatch(pc *models.ProcessingContext) models.ContextPatch {
	reply := "I want to make sure you get the right help, so I'm looping in a member of the team. They'll get back to you shortly."
	if pc.Role == models.RoleOperator {
		reply = "No matching instructions for this request; review needed."
	}

	return models.ContextPatch{
		Reply: reply,
		Actions: []models.Action{{
			Type:   "escalate_to_human",
			Status: models.ActionStatusPending,
			Details: map[string]any{
				"reason": "low confidence or no applicable instructions",
			},
		}},
	}
}

func buildReplyPrompt(pc *models.ProcessingContext) string {
	var b strings.Builder

	businessName := "the business"
	businessType := models.GeneralBusinessType

	if pc.Business != nil {
		if pc.Business.Name != "" {
			businessName = pc.Business.Name
		}

		businessType = pc.Business.Type
	}

	fmt.Fprintf(&b, "You are the assistant for %s (a %s business).\n", businessName, businessType)
	fmt.Fprintf(&b, "It is %s on %s (%s).\n", pc.Time.Time, pc.Time.Date, pc.Time.Weekday)

	style := "guided"

	for _, instruction := range pc.Instructions {
		if instruction.Capabilities.ResponseStyle != "" {
			style = instruction.Capabilities.ResponseStyle
		}

		if instruction.Body != "" {
			fmt.Fprintf(&b, "Instruction: %s\n", instruction.Body)
		}
	}

	fmt.Fprintf(&b, "Response style: %s.\n", style)

	if len(pc.UserMemory) > 0 {
		if known, err := json.Marshal(pc.UserMemory); err == nil {
			fmt.Fprintf(&b, "Known about this user: %s\n", known)
		}
	}

	for i := len(pc.History) - 1; i >= 0; i-- {
		fmt.Fprintf(&b, "%s: %s\n", pc.History[i].Role, pc.History[i].Content)
	}

	for _, query := range pc.Queries {
		if encoded, err := json.Marshal(query.Result); err == nil {
			fmt.Fprintf(&b, "Data (%s): %s\n", query.Query, encoded)
		}
	}

	fmt.Fprintf(&b, "user: %s\nassistant:", pc.Message)

	return b.String()
}

func hasWorkflowSteps(resolved []models.Instruction) bool {
	_, ok := firstWithSteps(resolved)

	return ok
}

func firstWithSteps(resolved []models.Instruction) (models.Instruction, bool) {
	for _, instruction := range resolved {
		if len(instruction.Steps) > 0 {
			return instruction, true
		}
	}

	return models.Instruction{}, false
}

func anyNonEmpty(snapshots map[string]models.MemoryMap) bool {
	for _, snapshot := range snapshots {
		if len(snapshot) > 0 {
			return true
		}
	}

	return false
}
