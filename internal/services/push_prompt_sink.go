package services

import (
	"context"
	"errors"
	"time"

	"panicdesk/internal/models"
	"panicdesk/pkg/logger"
	"panicdesk/pkg/push"
)

const (
	pushSendTimeout = 10 * time.Second
	pushQueueSize   = 128
)

var errPushQueueFull = errors.New("push queue full")

// PushPromptSink mirrors prompts to supervisor devices subscribed to the
// district topic. Sends happen on the Run goroutine in the order prompts change.
type PushPromptSink struct {
	provider push.PushProvider
	topic    func() string
	lifetime time.Duration
	queue    chan *push.NotificationRequest
	logger   *logger.Logger
}

// NewPushPromptSink resolves the topic on every prompt so it follows the current
// session's district. An empty topic skips the prompt.
func NewPushPromptSink(provider push.PushProvider, topic func() string, lifetime time.Duration, log *logger.Logger) *PushPromptSink {
	return &PushPromptSink{
		provider: provider,
		topic:    topic,
		lifetime: lifetime,
		queue:    make(chan *push.NotificationRequest, pushQueueSize),
		logger:   log.WithComponent("push_prompts"),
	}
}

// Run delivers queued prompts until ctx is done.
func (p *PushPromptSink) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case request := <-p.queue:
			if err := p.deliver(ctx, request); err != nil {
				p.logger.WithError(err).WithField("topic", request.Topic).Warn("Failed to push prompt")
			}
		}
	}
}

func (p *PushPromptSink) PromptRequested(_ context.Context, ticket models.NotificationTicket) error {
	topic := p.topic()
	if topic == "" {
		return nil
	}

	body := ticket.RenderData.VictimLabel
	if body == "" {
		body = "Open the console to respond"
	}
	return p.enqueue(&push.NotificationRequest{
		Topic: topic,
		Title: ticket.RenderData.Title,
		Body:  body,
		Data: map[string]string{
			"type":     "promptRequested",
			"alertId":  ticket.AlertID,
			"deepLink": ticket.RenderData.DeepLink,
		},
		Priority:    "high",
		TTL:         p.lifetime,
		CollapseKey: ticket.AlertID,
		Android: &push.AndroidConfig{
			ChannelID: "panic-alerts",
			Tag:       ticket.AlertID,
		},
	})
}

func (p *PushPromptSink) PromptDismissed(_ context.Context, alertID string, reason models.DismissReason) error {
	topic := p.topic()
	if topic == "" {
		return nil
	}
	return p.enqueue(&push.NotificationRequest{
		Topic: topic,
		Data: map[string]string{
			"type":    "promptDismissed",
			"alertId": alertID,
			"reason":  string(reason),
		},
		Priority:    "normal",
		CollapseKey: alertID,
	})
}

func (p *PushPromptSink) enqueue(request *push.NotificationRequest) error {
	select {
	case p.queue <- request:
		return nil
	default:
		return errPushQueueFull
	}
}

func (p *PushPromptSink) deliver(ctx context.Context, request *push.NotificationRequest) error {
	sendCtx, cancel := context.WithTimeout(ctx, pushSendTimeout)
	defer cancel()

	response, err := p.provider.SendNotification(sendCtx, request)
	if err != nil {
		return err
	}
	p.logger.WithFields(map[string]interface{}{
		"topic":      request.Topic,
		"message_id": response.MessageID,
		"type":       request.Data["type"],
	}).Debug("Prompt pushed")
	return nil
}
