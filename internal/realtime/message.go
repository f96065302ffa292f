package realtime

const (
	EventJobCreated  = "JobCreated"
	EventJobProgress = "JobProgress"
	EventJobFailed   = "JobFailed"
	EventJobDone     = "JobDone"
)

// Message is one job lifecycle notification. Channel is the job id so
// subscribers can follow a single job on a shared bus channel.
type Message struct {
	Channel string         `json:"channel"`
	Event   string         `json:"event"`
	Data    map[string]any `json:"data"`
}
