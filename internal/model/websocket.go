package model

// WebSocket message types
const (
	WSMessageTypeJobUpdated = "job.updated"
	WSMessageTypeJobUrgent  = "job.urgent"
	WSMessageTypeResync     = "resync"
	WSMessageTypePing       = "ping"
	WSMessageTypePong       = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSJobUpdatedMessage carries a lifecycle event to dashboards
type WSJobUpdatedMessage struct {
	Type  string         `json:"type"`
	Event LifecycleEvent `json:"event"`
}

// WSJobUrgentMessage flags a job close to its due date
type WSJobUrgentMessage struct {
	Type         string   `json:"type"`
	JobID        string   `json:"jobId"`
	DisplayCode  string   `json:"displayCode"`
	Status       Status   `json:"status"`
	Priority     Priority `json:"priority"`
	DaysUntilDue int      `json:"daysUntilDue"`
}

// WSResyncMessage tells a client it missed events and must re-fetch
type WSResyncMessage struct {
	Type   string `json:"type"`
	Topic  string `json:"topic"`
	Reason string `json:"reason"`
}
