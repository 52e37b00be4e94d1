package mqtt

import (
	"context"

	coremqtt "github.com/kilianp07/loadguard/core/mqtt"
)

// Notifier publishes user notifications and flow triggers.
type Notifier struct {
	client *PahoClient
}

// NewNotifier returns a notifier publishing through client.
func NewNotifier(client *PahoClient) *Notifier { return &Notifier{client: client} }

// CreateNotification publishes a user-facing notification.
func (n *Notifier) CreateNotification(ctx context.Context, text string) error {
	msg := coremqtt.Notification{Text: text, Timestamp: n.client.now().UnixMilli()}
	return n.client.PublishJSON(ctx, n.client.Topics().Notification(), "notification", false, msg)
}

// TriggerFlow fires the named automation flow.
func (n *Notifier) TriggerFlow(ctx context.Context, name string, payload map[string]any) error {
	msg := coremqtt.FlowTrigger{Flow: name, Payload: payload, Timestamp: n.client.now().UnixMilli()}
	return n.client.PublishJSON(ctx, n.client.Topics().Flow(name), "notification", false, msg)
}
