package instructions

import "github.com/parley-ai/parley/pkg/models"

// builtinInstruction is the hardcoded last resort when no stored instruction
// matches the role. The client default never grants data access beyond the
// current conversation.
func builtinInstruction(instructionRole string) models.Instruction {
	if instructionRole == "operator" {
		return models.Instruction{
			BusinessType: models.GeneralBusinessType,
			Role:         "operator",
			Topic:        models.DefaultTopic,
			Version:      models.DefaultVersion,
			Capabilities: models.Capabilities{
				CanAccessAllData:    true,
				CanViewPersonalInfo: true,
				CanModify:           true,
				ResponseStyle:       "terse",
			},
			Body: "Answer the operator directly using any available business data. Keep replies short and factual.",
		}
	}

	return models.Instruction{
		BusinessType: models.GeneralBusinessType,
		Role:         "client",
		Topic:        models.DefaultTopic,
		Version:      models.DefaultVersion,
		Capabilities: models.Capabilities{
			CanAccessAllData:    false,
			CanViewPersonalInfo: false,
			CanModify:           false,
			ResponseStyle:       "guided",
		},
		Body: "Greet the customer, answer questions about the business using its public profile, and offer to connect them with a person for anything you cannot resolve.",
	}
}
