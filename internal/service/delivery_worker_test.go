package service

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmail/flowmail-core/internal/domain"
	"github.com/flowmail/flowmail-core/internal/store"
	"github.com/flowmail/flowmail-core/pkg/logger"
)

// fakeGateway is a hand-written domain.HTTPClient fake standing in for the
// HTTP SMTP gateway: it records every /send call and returns a canned
// message id, or a downstream error when configured to fail.
type fakeGateway struct {
	fail bool
	sent []sendRequest
}

func (g *fakeGateway) Do(req *http.Request) (*http.Response, error) {
	body, _ := io.ReadAll(req.Body)
	var r sendRequest
	_ = json.Unmarshal(body, &r)
	g.sent = append(g.sent, r)

	if g.fail {
		return &http.Response{StatusCode: http.StatusBadGateway, Body: io.NopCloser(strings.NewReader(`{"error":"down"}`))}, nil
	}

	buf, _ := json.Marshal(sendResponse{MessageID: "msg-1"})
	return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewReader(buf)), Header: make(http.Header)}, nil
}

func newDeliveryWorkerForTest(f *fakePostgREST, gw *fakeGateway, rewriter *LinkRewriter) *DeliveryWorker {
	client := store.NewClient("https://x.test/rest/v1", "key", f, logger.NewNoop())
	gateway := NewMailGateway("https://gateway.test", "token", gw, logger.NewNoop())
	if rewriter == nil {
		rewriter = NewLinkRewriter("", "")
	}
	return NewDeliveryWorker(
		store.NewEmailSendRepository(client),
		store.NewCampaignRepository(client),
		store.NewContactRepository(client),
		store.NewWorkspaceRepository(client),
		NewTemplateEngine(),
		rewriter,
		gateway,
		"default@example.com", "Default Sender",
		logger.NewNoop(),
	)
}

func TestDeliveryWorker_Process_SendsDueQueuedSend(t *testing.T) {
	f := newFakePostgREST()
	past := time.Now().Add(-time.Minute)

	f.seed("email_sends", []domain.EmailSend{{
		ID: "send1", WorkspaceID: "ws1", CampaignID: domain.BulkEmailCampaignID,
		ToEmail: "a@example.com", Subject: "Hi", Status: domain.EmailSendStatusQueued, ExecuteAt: past,
		Meta: map[string]interface{}{"body": "Hello {{firstName}}"},
	}})

	gw := &fakeGateway{}
	w := newDeliveryWorkerForTest(f, gw, nil)

	n, err := w.Process(context.Background(), "ws1", 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Len(t, gw.sent, 1)
	assert.Equal(t, "a@example.com", gw.sent[0].To)
	assert.Contains(t, gw.sent[0].HTML, "Hello")

	var send domain.EmailSend
	require.True(t, f.row("email_sends", "send1", &send))
	assert.Equal(t, domain.EmailSendStatusSent, send.Status)
	require.NotNil(t, send.ProviderMessageID)
	assert.Equal(t, "msg-1", *send.ProviderMessageID)
}

func TestDeliveryWorker_Process_GatewayFailureMarksSendFailed(t *testing.T) {
	f := newFakePostgREST()
	past := time.Now().Add(-time.Minute)

	f.seed("email_sends", []domain.EmailSend{{
		ID: "send1", WorkspaceID: "ws1", CampaignID: domain.BulkEmailCampaignID,
		ToEmail: "a@example.com", Subject: "Hi", Status: domain.EmailSendStatusQueued, ExecuteAt: past,
		Meta: map[string]interface{}{"body": "Hello"},
	}})

	gw := &fakeGateway{fail: true}
	w := newDeliveryWorkerForTest(f, gw, nil)

	n, err := w.Process(context.Background(), "ws1", 10)
	require.NoError(t, err, "per-item delivery failures don't fail the whole batch")
	assert.Equal(t, 1, n)

	var send domain.EmailSend
	require.True(t, f.row("email_sends", "send1", &send))
	assert.Equal(t, domain.EmailSendStatusFailed, send.Status)
}

func TestDeliveryWorker_Process_RendersCampaignBlocksWhenPresent(t *testing.T) {
	f := newFakePostgREST()
	past := time.Now().Add(-time.Minute)

	f.seed("campaigns", []domain.Campaign{{
		ID: "camp1", WorkspaceID: "ws1", Subject: "Promo", Body: "fallback body",
		EmailBlocks: []domain.EmailBlock{{Type: "text", Data: map[string]interface{}{"text": "block content"}}},
	}})
	f.seed("email_sends", []domain.EmailSend{{
		ID: "send1", WorkspaceID: "ws1", CampaignID: "camp1",
		ToEmail: "a@example.com", Subject: "Promo", Status: domain.EmailSendStatusQueued, ExecuteAt: past,
	}})

	gw := &fakeGateway{}
	w := newDeliveryWorkerForTest(f, gw, nil)

	n, err := w.Process(context.Background(), "ws1", 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Len(t, gw.sent, 1)
	assert.Contains(t, gw.sent[0].HTML, "block content")
}

func TestDeliveryWorker_Process_RewritesLinksWhenTrackingEnabled(t *testing.T) {
	f := newFakePostgREST()
	past := time.Now().Add(-time.Minute)

	f.seed("email_sends", []domain.EmailSend{{
		ID: "send1", WorkspaceID: "ws1", CampaignID: domain.BulkEmailCampaignID,
		ToEmail: "a@example.com", Subject: "Hi", Status: domain.EmailSendStatusQueued, ExecuteAt: past,
		Meta: map[string]interface{}{"body": `<a href="https://example.com/landing">click</a>`},
	}})

	gw := &fakeGateway{}
	rewriter := NewLinkRewriter("https://track.test", "unsub-key")
	w := newDeliveryWorkerForTest(f, gw, rewriter)

	n, err := w.Process(context.Background(), "ws1", 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Len(t, gw.sent, 1)
	assert.Contains(t, gw.sent[0].HTML, "https://track.test/track/click")
	assert.Contains(t, gw.sent[0].HTML, "https://track.test/track/open")
}

func TestDeliveryWorker_Process_NoDueSendsIsNoop(t *testing.T) {
	f := newFakePostgREST()
	gw := &fakeGateway{}
	w := newDeliveryWorkerForTest(f, gw, nil)

	n, err := w.Process(context.Background(), "ws1", 10)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, gw.sent)
}
