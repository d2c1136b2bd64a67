// Package notify fans report status changes out to push gateways.
package notify

import (
	"context"

	"github.com/apex/log"
)

// Message is one push notification for one device token.
type Message struct {
	Token string            `json:"to"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// Gateway submits a message to a push service. Errors are per message.
type Gateway interface {
	Send(ctx context.Context, msg Message) error
}

// LogGateway only logs messages. Used in development.
type LogGateway struct{}

func (LogGateway) Send(ctx context.Context, msg Message) error {
	log.WithFields(log.Fields{
		"report_id": msg.Data["reportId"],
		"status":    msg.Data["status"],
	}).Infof("push %q", msg.Title)
	return nil
}
