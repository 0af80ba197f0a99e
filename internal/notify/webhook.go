package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/studywise/internal/logger"
)

type delivery struct {
	event   Event
	payload []byte
}

// WebhookNotifier posts HMAC-signed events to one endpoint from a
// background loop so ingestion never waits on the receiver.
type WebhookNotifier struct {
	log        *logger.Logger
	url        string
	secret     string
	httpClient *http.Client
	deliveries chan delivery
	done       chan struct{}
	closeOnce  sync.Once
}

func NewWebhookNotifier(url, secret string, log *logger.Logger) *WebhookNotifier {
	n := &WebhookNotifier{
		log:        log.With("component", "webhook"),
		url:        url,
		secret:     secret,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		deliveries: make(chan delivery, 1000),
		done:       make(chan struct{}),
	}
	go n.processLoop()
	return n
}

func (n *WebhookNotifier) Notify(_ context.Context, _ uuid.UUID, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	select {
	case n.deliveries <- delivery{event: ev, payload: payload}:
	default:
		n.log.Warn("webhook delivery queue full, dropping", "event", ev.Type, "document_id", ev.DocumentID)
	}
	return nil
}

// Close stops accepting events and waits for queued deliveries.
func (n *WebhookNotifier) Close() {
	n.closeOnce.Do(func() { close(n.deliveries) })
	<-n.done
}

func (n *WebhookNotifier) processLoop() {
	defer close(n.done)
	for d := range n.deliveries {
		n.deliver(d)
	}
}

func (n *WebhookNotifier) deliver(d delivery) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(d.payload))
	if err != nil {
		n.log.Error("webhook request creation failed", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Event", string(d.event.Type))
	req.Header.Set("X-Webhook-Signature", Sign(d.payload, n.secret))
	req.Header.Set("X-Webhook-ID", d.event.ID.String())

	resp, err := n.httpClient.Do(req)
	if err != nil {
		n.log.Error("webhook delivery failed", "error", err, "event_id", d.event.ID)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		n.log.Warn("webhook received non-success response", "status", resp.StatusCode, "event_id", d.event.ID)
	}
}

func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return fmt.Sprintf("sha256=%s", hex.EncodeToString(mac.Sum(nil)))
}
