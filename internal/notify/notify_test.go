package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/intentd/internal/bridge"
	"github.com/fyrsmithlabs/intentd/internal/config"
	"github.com/fyrsmithlabs/intentd/internal/intent"
	"github.com/fyrsmithlabs/intentd/internal/logging"
)

type fakeRunner struct {
	calls  atomic.Int32
	result bridge.Result
	err    error
}

func (f *fakeRunner) Run(_ context.Context, _ string) (bridge.Result, error) {
	f.calls.Add(1)
	if f.err != nil {
		return bridge.Result{}, f.err
	}
	if f.result == (bridge.Result{}) {
		return bridge.Result{OK: true}, nil
	}
	return f.result, nil
}

func testIntent() *intent.Result {
	return &intent.Result{
		Actionable: true,
		Content:    "call landlord at 8pm",
		DueTime:    "2026-08-31T20:00",
	}
}

func TestNotifyDesktopOnly(t *testing.T) {
	runner := &fakeRunner{}
	n := NewNotifier(runner, logging.NewNop())

	out := n.Notify(context.Background(), config.NotifyConfig{Desktop: true}, testIntent())
	assert.True(t, out.Desktop)
	assert.Empty(t, out.Webhooks)
	assert.Empty(t, out.Errors)
	assert.Equal(t, int32(1), runner.calls.Load())
}

func TestNotifyPartialFailureIsolation(t *testing.T) {
	var okHits, failHits atomic.Int32
	okSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		okHits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer okSrv.Close()
	failSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		failHits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failSrv.Close()

	cfg := config.NotifyConfig{
		Desktop: true,
		Webhooks: []config.WebhookConfig{
			{Provider: ProviderSlack, Enabled: true, URL: failSrv.URL},
			{Provider: ProviderGeneric, Enabled: true, URL: okSrv.URL},
		},
	}
	n := NewNotifier(&fakeRunner{}, logging.NewNop())

	out := n.Notify(context.Background(), cfg, testIntent())
	assert.True(t, out.Desktop)
	assert.Equal(t, []string{ProviderGeneric}, out.Webhooks)
	require.Len(t, out.Errors, 1)
	assert.Contains(t, out.Errors[0], "webhook(slack)")
	assert.Contains(t, out.Errors[0], "HTTP 500")
	assert.Equal(t, int32(1), okHits.Load())
	assert.Equal(t, int32(1), failHits.Load())
}

func TestNotifyDisabledChannelsSkipped(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	cfg := config.NotifyConfig{
		Desktop: false,
		Webhooks: []config.WebhookConfig{
			{Provider: ProviderSlack, Enabled: false, URL: srv.URL},
		},
	}
	runner := &fakeRunner{}
	n := NewNotifier(runner, logging.NewNop())

	out := n.Notify(context.Background(), cfg, testIntent())
	assert.False(t, out.Desktop)
	assert.Empty(t, out.Webhooks)
	assert.Empty(t, out.Errors)
	assert.Equal(t, int32(0), hits.Load())
	assert.Equal(t, int32(0), runner.calls.Load())
}

func TestNotifyTelegramWithoutChatIDFailsFast(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	cfg := config.NotifyConfig{
		Webhooks: []config.WebhookConfig{
			{Provider: ProviderTelegram, Enabled: true, URL: srv.URL},
		},
	}
	n := NewNotifier(&fakeRunner{}, logging.NewNop())

	out := n.Notify(context.Background(), cfg, testIntent())
	require.Len(t, out.Errors, 1)
	assert.Contains(t, out.Errors[0], "chat_id")
	assert.Equal(t, int32(0), hits.Load(), "no HTTP call may be made")
}

func TestPayloadShapes(t *testing.T) {
	res := testIntent()

	tests := []struct {
		provider string
		chatID   string
		wantKey  string
	}{
		{ProviderSlack, "", "text"},
		{ProviderDiscord, "", "content"},
		{ProviderTelegram, "12345", "chat_id"},
		{ProviderGeneric, "", "actionable"},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			payload, err := shapePayload(config.WebhookConfig{
				Provider: tt.provider, ChatID: tt.chatID,
			}, res)
			require.NoError(t, err)

			var m map[string]any
			require.NoError(t, json.Unmarshal(payload, &m))
			assert.Contains(t, m, tt.wantKey)
		})
	}
}

func TestMessageText(t *testing.T) {
	assert.Equal(t, "call landlord at 8pm (due 2026-08-31T20:00)", messageText(testIntent()))
	assert.Equal(t, "pay rent", messageText(&intent.Result{Content: "pay rent"}))
}

func TestNotifyDesktopScriptFailureReported(t *testing.T) {
	runner := &fakeRunner{result: bridge.Result{OK: false, Err: "Notifications disabled"}}
	n := NewNotifier(runner, logging.NewNop())

	out := n.Notify(context.Background(), config.NotifyConfig{Desktop: true}, testIntent())
	assert.False(t, out.Desktop)
	require.Len(t, out.Errors, 1)
	assert.Contains(t, out.Errors[0], "desktop")
}
