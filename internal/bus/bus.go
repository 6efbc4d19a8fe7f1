package bus

import "context"

// Bus publishes deploy notifications.
type Bus interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Close()
}
