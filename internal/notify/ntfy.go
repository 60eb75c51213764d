package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/akamgm/arlog/internal/event"
)

const defaultNtfyBase = "https://ntfy.sh"

// Ntfy publishes events to an ntfy topic: one POST per event with a Title
// header and a plain-text body.
type Ntfy struct {
	client *resty.Client
	topic  string
}

// NewNtfy builds a publisher for topic. baseURL is overridable for
// self-hosted servers and tests; empty selects ntfy.sh.
func NewNtfy(baseURL, topic string) *Ntfy {
	if baseURL == "" {
		baseURL = defaultNtfyBase
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second)
	return &Ntfy{client: client, topic: topic}
}

func (n *Ntfy) Name() string { return "ntfy" }

func (n *Ntfy) Send(ctx context.Context, ev event.Event) error {
	resp, err := n.client.R().
		SetContext(ctx).
		SetHeader("Title", title(ev)).
		SetBody(body(ev)).
		Post("/" + n.topic)
	if err != nil {
		return fmt.Errorf("post to ntfy: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("ntfy returned %s", resp.Status())
	}
	return nil
}
