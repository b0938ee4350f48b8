package learning

import "github.com/memoryd/memoryd/internal/model"

// FeedbackType identifies what kind of user signal a Feedback event carries.
type FeedbackType string

const (
	FeedbackApproval         FeedbackType = "approval"
	FeedbackRejection        FeedbackType = "rejection"
	FeedbackModification     FeedbackType = "modification"
	FeedbackPreferenceUpdate FeedbackType = "preference_update"
	FeedbackPositive         FeedbackType = "positive"
	FeedbackNegative         FeedbackType = "negative"
)

// positive reports whether the event counts as a confirmed-useful outcome for
// calibration purposes. A modification is positive: the user kept the memory,
// just not verbatim.
func (t FeedbackType) positive() bool {
	switch t {
	case FeedbackApproval, FeedbackModification, FeedbackPositive:
		return true
	default:
		return false
	}
}

// Feedback is a single user signal against a suggestion or stored conversation.
type Feedback struct {
	Type     FeedbackType
	TargetID string // conversation or suggestion id

	// Category and Confidence come from the analysis that produced the
	// suggestion; Confidence selects the calibration bucket.
	Category   model.Category
	Confidence float64

	Original  string
	Corrected *string
	Context   map[string]any
}
