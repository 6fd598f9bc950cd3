package models

// FallbackIntentCategory is the category assigned when classification fails
// or produces something unusable; it routes the message to the escalation
// path instead of blocking the pipeline.
const FallbackIntentCategory = "customer_service"

// Intent is the structured classification of a free-text message.
type Intent struct {
	Action                string  `json:"action"`
	Category              string  `json:"category"`
	Confidence            float64 `json:"confidence"`
	CanHandleAutonomously bool    `json:"canHandleAutonomously"`
	RequiresHumanApproval bool    `json:"requiresHumanApproval"`
}

// FallbackIntent is the deterministic low-confidence classification used
// whenever the completion service fails or returns something malformed.
func FallbackIntent() Intent {
	return Intent{
		Category:              FallbackIntentCategory,
		Confidence:            0.5,
		CanHandleAutonomously: false,
		RequiresHumanApproval: true,
	}
}
