package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"chronos/internal/config"
	"chronos/internal/domain"
	"chronos/internal/repo"
)

const (
	defaultWebhookInterval = 2 * time.Second
	defaultWebhookTimeout  = 5 * time.Second
	defaultWebhookBatch    = 100
)

// ActivitySource is where webhooks read new activity from.
type ActivitySource interface {
	ActivityAfter(ctx context.Context, limit int, cursor int64) ([]domain.Activity, error)
	LatestActivityID(ctx context.Context) (int64, error)
}

var _ ActivitySource = repo.Repo{}

type webhookDispatcher struct {
	source   ActivitySource
	webhooks []config.Webhook
	client   *http.Client
	log      *zap.Logger
	interval time.Duration
	mu       sync.Mutex
	cursors  map[string]int64
}

// StartWebhooks posts activity rows to the configured webhooks until ctx is
// done. Each webhook starts from the activity present when it first runs.
func StartWebhooks(ctx context.Context, src ActivitySource, hooks []config.Webhook, log *zap.Logger) {
	if len(hooks) == 0 {
		return
	}
	d := newWebhookDispatcher(src, hooks, log)
	go d.run(ctx)
}

func newWebhookDispatcher(src ActivitySource, hooks []config.Webhook, log *zap.Logger) *webhookDispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &webhookDispatcher{
		source:   src,
		webhooks: hooks,
		client:   &http.Client{Timeout: defaultWebhookTimeout},
		log:      log.Named("webhooks"),
		interval: defaultWebhookInterval,
		cursors:  make(map[string]int64),
	}
}

func (d *webhookDispatcher) run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		d.dispatchAll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (d *webhookDispatcher) dispatchAll(ctx context.Context) {
	for _, hook := range d.webhooks {
		if !hook.Enabled || strings.TrimSpace(hook.URL) == "" {
			continue
		}
		d.dispatchWebhook(ctx, hook)
	}
}

func (d *webhookDispatcher) dispatchWebhook(ctx context.Context, hook config.Webhook) {
	cursor := d.cursorFor(ctx, hook)
	items, err := d.source.ActivityAfter(ctx, defaultWebhookBatch, cursor)
	if err != nil {
		d.log.Warn("fetch activity failed", zap.String("webhook", hook.ID), zap.Error(err))
		return
	}
	filter := newActivityFilter(hook.Events)
	for _, act := range items {
		if !filter.match(act.Type) {
			d.setCursor(hook.ID, act.ID)
			continue
		}
		if err := d.post(ctx, hook, act); err != nil {
			d.log.Warn("deliver failed", zap.String("webhook", hook.ID), zap.String("url", hook.URL), zap.Int64("activity_id", act.ID), zap.Error(err))
			return
		}
		d.setCursor(hook.ID, act.ID)
	}
}

func (d *webhookDispatcher) cursorFor(ctx context.Context, hook config.Webhook) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.cursors[hook.ID]; ok {
		return cur
	}
	cur, err := d.source.LatestActivityID(ctx)
	if err != nil {
		d.log.Warn("init cursor failed", zap.String("webhook", hook.ID), zap.Error(err))
		cur = 0
	}
	d.cursors[hook.ID] = cur
	return cur
}

func (d *webhookDispatcher) setCursor(id string, value int64) {
	d.mu.Lock()
	d.cursors[id] = value
	d.mu.Unlock()
}

type webhookActivity struct {
	ID         int64           `json:"id"`
	Type       string          `json:"type"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    string          `json:"actor_id"`
	TS         string          `json:"ts"`
	Payload    json.RawMessage `json:"payload"`
	PayloadRaw string          `json:"payload_raw,omitempty"`
}

func (d *webhookDispatcher) post(ctx context.Context, hook config.Webhook, act domain.Activity) error {
	payload := json.RawMessage([]byte("{}"))
	var raw string
	if act.Payload != "" {
		if json.Valid([]byte(act.Payload)) {
			payload = json.RawMessage([]byte(act.Payload))
		} else {
			raw = act.Payload
		}
	}
	data, err := json.Marshal(webhookActivity{
		ID:         act.ID,
		Type:       act.Type,
		EntityKind: act.EntityKind,
		EntityID:   act.EntityID,
		ActorID:    act.ActorID,
		TS:         act.TS,
		Payload:    payload,
		PayloadRaw: raw,
	})
	if err != nil {
		return err
	}
	timeout := defaultWebhookTimeout
	if hook.TimeoutSeconds > 0 {
		timeout = time.Duration(hook.TimeoutSeconds) * time.Second
	}
	client := d.client
	if timeout != d.client.Timeout {
		client = &http.Client{Timeout: timeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Chronos-Event", act.Type)
	req.Header.Set("X-Chronos-Delivery", fmt.Sprintf("%d", act.ID))
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Chronos-Secret", hook.Secret)
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}
	return nil
}

type activityFilter struct {
	all bool
	set map[string]struct{}
}

func newActivityFilter(types []string) activityFilter {
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		if key := strings.TrimSpace(t); key != "" {
			set[key] = struct{}{}
		}
	}
	if len(set) == 0 {
		return activityFilter{all: true}
	}
	return activityFilter{set: set}
}

func (f activityFilter) match(t string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[t]
	return ok
}
