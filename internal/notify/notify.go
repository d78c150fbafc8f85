// Package notify fans a finalized intent out to the configured delivery
// channels: one desktop channel plus any number of webhooks.
//
// Channels are dispatched concurrently and isolated: one channel's
// failure is recorded but never delays or prevents the others. Disabled
// channels are skipped silently.
package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/intentd/internal/bridge"
	"github.com/fyrsmithlabs/intentd/internal/config"
	"github.com/fyrsmithlabs/intentd/internal/intent"
	"github.com/fyrsmithlabs/intentd/internal/logging"
)

// Result reports what was delivered where.
type Result struct {
	Desktop  bool     // desktop notification shown
	Webhooks []string // provider names that succeeded
	Errors   []string // one entry per failed channel
}

// Notifier dispatches intents to delivery channels.
type Notifier struct {
	runner   bridge.Runner
	webhooks *webhookClient
	log      *logging.Logger
}

// NewNotifier creates a notifier. The runner delivers the desktop
// channel; webhooks go over HTTP.
func NewNotifier(runner bridge.Runner, log *logging.Logger) *Notifier {
	return &Notifier{
		runner:   runner,
		webhooks: newWebhookClient(),
		log:      log.Named("notify"),
	}
}

// Notify dispatches res to every enabled channel concurrently and
// collects the outcome.
func (n *Notifier) Notify(ctx context.Context, cfg config.NotifyConfig, res *intent.Result) *Result {
	out := &Result{}
	var mu sync.Mutex
	var wg sync.WaitGroup

	if cfg.Desktop {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := n.desktop(ctx, res)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				out.Errors = append(out.Errors, fmt.Sprintf("desktop: %v", err))
			} else {
				out.Desktop = true
			}
		}()
	}

	for _, wh := range cfg.Webhooks {
		if !wh.Enabled {
			continue
		}
		wh := wh
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := n.webhooks.deliver(ctx, wh, res)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				out.Errors = append(out.Errors, fmt.Sprintf("webhook(%s): %v", wh.Provider, err))
			} else {
				out.Webhooks = append(out.Webhooks, wh.Provider)
			}
		}()
	}

	wg.Wait()

	n.log.Info("notified",
		zap.Bool("desktop", out.Desktop),
		zap.Strings("webhooks", out.Webhooks),
		zap.Int("errors", len(out.Errors)))
	return out
}

func (n *Notifier) desktop(ctx context.Context, res *intent.Result) error {
	title := "Intentd"
	if res.Urgent {
		title = "Intentd (urgent)"
	}
	r, err := n.runner.Run(ctx, bridge.NotificationScript(title, messageText(res), res.Urgent))
	if err != nil {
		return err
	}
	if !r.OK {
		return fmt.Errorf("%s", r.Err)
	}
	return nil
}

// messageText renders the intent as one human-readable line.
func messageText(res *intent.Result) string {
	var b strings.Builder
	b.WriteString(res.Content)
	if res.DueTime != "" {
		b.WriteString(" (due ")
		b.WriteString(res.DueTime)
		b.WriteString(")")
	}
	return b.String()
}
