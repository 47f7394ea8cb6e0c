package server

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"taskpulse/internal/config"
	"taskpulse/internal/engine"
	"taskpulse/internal/notify"
)

const (
	defaultWebhookInterval = 2 * time.Second
	defaultWebhookBatch    = 100
)

// webhookDispatcher tails the notifications table and forwards new rows to
// each configured webhook. Cursors are per hook, so a slow endpoint never
// holds back the others.
type webhookDispatcher struct {
	engine   engine.Engine
	webhooks []config.WebhookConfig
	sinks    map[int]*notify.WebhookSink
	mu       sync.Mutex
	cursors  map[int]int64
}

func startWebhookDispatcher(e engine.Engine) {
	if e.Config == nil || len(e.Config.Webhooks) == 0 {
		return
	}
	d := &webhookDispatcher{
		engine:   e,
		webhooks: e.Config.Webhooks,
		sinks:    make(map[int]*notify.WebhookSink),
		cursors:  make(map[int]int64),
	}
	go d.run()
}

func (d *webhookDispatcher) run() {
	ticker := time.NewTicker(defaultWebhookInterval)
	defer ticker.Stop()
	for {
		d.dispatchAll()
		<-ticker.C
	}
}

func (d *webhookDispatcher) dispatchAll() {
	for i, hook := range d.webhooks {
		if hook.Enabled != nil && !*hook.Enabled {
			continue
		}
		if strings.TrimSpace(hook.URL) == "" {
			continue
		}
		d.dispatchWebhook(i, hook)
	}
}

func (d *webhookDispatcher) dispatchWebhook(idx int, hook config.WebhookConfig) {
	ctx := context.Background()
	cursor := d.cursorFor(idx)
	items, err := d.engine.Repo.NotificationsAfter(ctx, cursor, defaultWebhookBatch)
	if err != nil {
		log.Printf("webhook: fetch notifications failed: %v", err)
		return
	}
	sink := d.sinkFor(idx, hook)
	for _, n := range items {
		if err := sink.Emit(ctx, n); err != nil {
			// stop at the first failure so the cursor stays behind it
			log.Printf("webhook %s: %v", hook.URL, err)
			return
		}
		d.setCursor(idx, n.ID)
	}
}

func (d *webhookDispatcher) sinkFor(idx int, hook config.WebhookConfig) *notify.WebhookSink {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.sinks[idx]; ok {
		return s
	}
	s := notify.NewWebhookSink(hook.URL)
	d.sinks[idx] = s
	return s
}

func (d *webhookDispatcher) cursorFor(idx int) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cursors[idx]
}

func (d *webhookDispatcher) setCursor(idx int, id int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if id > d.cursors[idx] {
		d.cursors[idx] = id
	}
}
