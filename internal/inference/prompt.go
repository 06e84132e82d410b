package inference

import "fmt"

// detectionSystemPrompt is the fixed instruction for the detection request.
// The model must answer with newline-delimited JSON records only; anything
// else is discarded by the stream parser.
const detectionSystemPrompt = `You analyze a live meeting transcript and emit detections as newline-delimited JSON, one object per line, no surrounding prose or markdown.

Each line is one of:
{"type":"question","id":"q_<uuid>","text":"...","speaker":"..."}
{"type":"action","id":"a_<uuid>","text":"<description>","owner":"...","deadline":"..."}
{"type":"action_update","id":"a_<uuid>","text":"...","owner":"...","deadline":"..."}
{"type":"answer","text":"...","confidence":0.0,"question_id":"q_<uuid>"}

Rules:
- Emit a question only for genuine information requests, not rhetorical asides.
- Emit action for newly mentioned commitments; emit action_update with the same id when later speech adds an owner, deadline, or a clearer description to an action you already reported.
- Emit answer when the conversation plausibly answers an earlier question; set confidence in [0,1] and question_id when you know which question it answers.
- Omit fields you cannot extract. Never invent owners, deadlines, or answers.
- Emit nothing when the transcript contains no new detections.`

func detectionUserPrompt(contextText string) string {
	return fmt.Sprintf("Recent transcript window:\n\n%s", contextText)
}
