package insight

// DetectionType discriminates the union of structured objects the streaming
// inference capability emits.
type DetectionType string

const (
	DetectionQuestion     DetectionType = "question"
	DetectionAction       DetectionType = "action"
	DetectionActionUpdate DetectionType = "action_update"
	DetectionAnswer       DetectionType = "answer"
)

// Known reports whether t is one of the four detection discriminants.
func (t DetectionType) Known() bool {
	switch t {
	case DetectionQuestion, DetectionAction, DetectionActionUpdate, DetectionAnswer:
		return true
	}
	return false
}

// DetectionObject is one structured record parsed from the inference stream.
// Which payload fields are meaningful depends on Type:
//
//	question:      ID (q_<uuid>), Text, Speaker
//	action:        ID (a_<uuid>), Text (description), Owner, Deadline
//	action_update: ID of an existing action, plus any of Text/Owner/Deadline
//	answer:        Text (candidate answer), Confidence, optional QuestionID
type DetectionObject struct {
	Type       DetectionType `json:"type"`
	ID         string        `json:"id"`
	Text       string        `json:"text,omitempty"`
	Speaker    string        `json:"speaker,omitempty"`
	Owner      string        `json:"owner,omitempty"`
	Deadline   string        `json:"deadline,omitempty"`
	Confidence float64       `json:"confidence,omitempty"`
	QuestionID string        `json:"question_id,omitempty"`
}
