package intent

import (
	"fmt"
	"strings"
)

// Intent is the discrete label describing what kind of email should be
// drafted next for a conversation thread.
type Intent uint8

const (
	// IntentUnknown is the zero value, used when no label could be
	// determined.
	IntentUnknown Intent = iota

	// IntentReply is a direct response to a question or request in the
	// most recent message.
	IntentReply

	// IntentFollowUp continues a previous conversation with updates or
	// additional information.
	IntentFollowUp

	// IntentReminder nudges about pending items or unanswered questions.
	IntentReminder

	// IntentInquiry asks for information, clarification, or updates.
	IntentInquiry
)

// String returns the wire label for the intent.
func (i Intent) String() string {
	switch i {
	case IntentReply:
		return "reply"
	case IntentFollowUp:
		return "follow_up"
	case IntentReminder:
		return "reminder"
	case IntentInquiry:
		return "inquiry"
	default:
		return "unknown"
	}
}

// allIntents lists the labels the classifier may return, in the order
// used for substring salvage of sloppy LLM output.
var allIntents = []Intent{
	IntentReply, IntentFollowUp, IntentReminder, IntentInquiry,
}

// Parse maps a label to its Intent. Labels outside the enumeration map
// to IntentUnknown with an error for callers that care.
func Parse(label string) (Intent, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "reply":
		return IntentReply, nil
	case "follow_up":
		return IntentFollowUp, nil
	case "reminder":
		return IntentReminder, nil
	case "inquiry":
		return IntentInquiry, nil
	case "unknown", "":
		return IntentUnknown, nil
	default:
		return IntentUnknown, fmt.Errorf("unknown intent label %q",
			label)
	}
}

// salvage scans a free-form model response for a known label. The model
// sometimes pads the answer with prose even when told to return one word.
func salvage(raw string) (Intent, bool) {
	lowered := strings.ToLower(raw)
	for _, candidate := range allIntents {
		if strings.Contains(lowered, candidate.String()) {
			return candidate, true
		}
	}
	return IntentUnknown, false
}
