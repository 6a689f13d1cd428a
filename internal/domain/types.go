package domain

// RunStatus represents the lifecycle state of a run
type RunStatus string

const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// EventLevel is the severity of a run event
type EventLevel string

const (
	LevelInfo  EventLevel = "info"
	LevelWarn  EventLevel = "warn"
	LevelError EventLevel = "error"
)

// ValidLevel reports whether s is a recognized event level. Unknown
// levels are rejected at the ingestion boundary so the event log never
// carries values the inference engine would have to special-case.
func ValidLevel(s string) bool {
	switch EventLevel(s) {
	case LevelInfo, LevelWarn, LevelError:
		return true
	}
	return false
}
