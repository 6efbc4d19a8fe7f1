package history

import "time"

// Trigger outcomes
const (
	StatusStarted      = "started"
	StatusSkipped      = "skipped"
	StatusRejected     = "rejected"
	StatusLaunchFailed = "launch_failed"
)

// TriggerRecord represents the outcome of one webhook delivery
type TriggerRecord struct {
	ID           int64     `json:"id"`
	DeployID     *string   `json:"deploy_id,omitempty"` // set once a deploy is attempted
	Ref          string    `json:"ref"`
	CommitHash   *string   `json:"commit_hash,omitempty"`
	DeliveryID   *string   `json:"delivery_id,omitempty"`
	Event        *string   `json:"event,omitempty"`
	RemoteAddr   string    `json:"remote_addr"`
	Status       string    `json:"status"`
	PID          *int      `json:"pid,omitempty"`
	ErrorMessage *string   `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
