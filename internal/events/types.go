package events

import "time"

// DeployTriggered is published after a deploy process has been launched.
type DeployTriggered struct {
	DeployID    string    `json:"deploy_id"`
	Ref         string    `json:"ref"`
	Commit      string    `json:"commit,omitempty"`
	DeliveryID  string    `json:"delivery_id,omitempty"`
	PID         int       `json:"pid"`
	TriggeredAt time.Time `json:"triggered_at"`
}
