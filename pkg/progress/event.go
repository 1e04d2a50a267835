// Package progress implements a throttled, single-producer, multi-subscriber
// event bus carrying transient execution updates (stage lifecycle, token
// streaming, checkpoints, user prompts) out to renderers.
package progress

import "time"

// Kind tags the variant of an Event.
type Kind string

const (
	KindStageStart    Kind = "stage-start"
	KindStageProgress Kind = "stage-progress"
	KindStageComplete Kind = "stage-complete"
	KindStageError    Kind = "stage-error"
	KindTokenStream   Kind = "token-stream"
	KindCheckpoint    Kind = "checkpoint"
	KindUserPrompt    Kind = "user-prompt"
)

// criticalKinds are delivered immediately, never throttled.
var criticalKinds = map[Kind]bool{
	KindStageStart:    true,
	KindStageComplete: true,
	KindStageError:    true,
	KindCheckpoint:    true,
	KindUserPrompt:    true,
}

// IsCritical reports whether k bypasses throttling.
func (k Kind) IsCritical() bool {
	return criticalKinds[k]
}

// Event is one transient progress update.
type Event struct {
	Kind      Kind
	Timestamp time.Time

	// Stage events carry these.
	StageIndex int
	StageName  string
	Percent    float64 // stage-progress only

	// token-stream carries a text chunk.
	Chunk string

	// checkpoint / user-prompt carry a free-form payload.
	Payload any

	// stage-error carries the failure.
	Err error
}
