package agent

// Stage tags a progress event emitted while a query is processed.
type Stage string

const (
	StageCodeGenerated   Stage = "code-generated"
	StageExecutionFailed Stage = "execution-failed"
	StageCodeRegenerated Stage = "code-regenerated"
	StageFinalError      Stage = "final-error"
	StageFinalResult     Stage = "final-result"
)

// Event is one progress notification. Events are immutable once emitted;
// the last event of a stream is always StageFinalResult or
// StageFinalError.
type Event struct {
	Stage    Stage
	Payload  any
	Metadata map[string]any
}

// Terminal reports whether this event ends the stream.
func (e Event) Terminal() bool {
	return e.Stage == StageFinalResult || e.Stage == StageFinalError
}
