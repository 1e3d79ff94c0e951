package service

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmail/flowmail-core/internal/domain"
	"github.com/flowmail/flowmail-core/internal/store"
	"github.com/flowmail/flowmail-core/pkg/logger"
)

// tableRouter is a hand-written domain.HTTPClient fake keyed by table name,
// standing in for a PostgREST backend in enqueue-service tests.
type tableRouter struct {
	campaigns []domain.Campaign
	contacts  []domain.Contact

	insertedSends []domain.EmailSend
}

func (r *tableRouter) Do(req *http.Request) (*http.Response, error) {
	path := req.URL.Path
	switch {
	case req.Method == http.MethodGet && strings.Contains(path, "campaigns"):
		return jsonOK(r.campaigns), nil
	case req.Method == http.MethodGet && strings.Contains(path, "contacts"):
		return jsonOK(r.contacts), nil
	case req.Method == http.MethodPost && strings.Contains(path, "email_sends"):
		body, _ := io.ReadAll(req.Body)
		var sends []domain.EmailSend
		_ = json.Unmarshal(body, &sends)
		r.insertedSends = append(r.insertedSends, sends...)
		return emptyStatus(http.StatusCreated), nil
	}
	return emptyStatus(http.StatusOK), nil
}

func jsonOK(v interface{}) *http.Response {
	buf, _ := json.Marshal(v)
	return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewReader(buf)), Header: make(http.Header)}
}

func emptyStatus(status int) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(bytes.NewReader(nil)), Header: make(http.Header)}
}

func newEnqueuerForTest(router *tableRouter) *Enqueuer {
	client := store.NewClient("https://x.test/rest/v1", "key", router, logger.NewNoop())
	return NewEnqueuer(
		store.NewCampaignRepository(client),
		store.NewContactRepository(client),
		store.NewEmailSendRepository(client),
		nil,
		logger.NewNoop(),
	)
}

func TestEnqueuer_SendCampaign_DryRunReportsMatchesWithoutInserting(t *testing.T) {
	router := &tableRouter{
		campaigns: []domain.Campaign{{ID: "camp1", WorkspaceID: "ws1", Subject: "Hello"}},
		contacts: []domain.Contact{
			{ID: "c1", Email: "a@example.com", Status: domain.ContactStatusSubscribed},
			{ID: "c2", Email: "b@example.com", Status: domain.ContactStatusSubscribed},
		},
	}
	e := newEnqueuerForTest(router)

	result, err := e.SendCampaign(context.Background(), SendCampaignRequest{
		WorkspaceID: "ws1",
		CampaignID:  "camp1",
		DryRun:      true,
	})

	require.NoError(t, err)
	assert.True(t, result.DryRun)
	assert.Equal(t, 2, result.Queued)
	assert.ElementsMatch(t, []string{"a@example.com", "b@example.com"}, result.Report)
	assert.Empty(t, router.insertedSends)
}

func TestEnqueuer_SendCampaign_QueuesMatchingContacts(t *testing.T) {
	router := &tableRouter{
		campaigns: []domain.Campaign{{ID: "camp1", WorkspaceID: "ws1", Subject: "Hello"}},
		contacts: []domain.Contact{
			{ID: "c1", Email: "a@example.com", Status: domain.ContactStatusSubscribed},
		},
	}
	e := newEnqueuerForTest(router)

	result, err := e.SendCampaign(context.Background(), SendCampaignRequest{
		WorkspaceID: "ws1",
		CampaignID:  "camp1",
	})

	require.NoError(t, err)
	assert.Equal(t, 1, result.Queued)
	require.Len(t, router.insertedSends, 1)
	assert.Equal(t, "a@example.com", router.insertedSends[0].ToEmail)
	assert.Equal(t, domain.EmailSendStatusQueued, router.insertedSends[0].Status)
}

func TestEnqueuer_SendCampaign_RequiresCampaignID(t *testing.T) {
	e := newEnqueuerForTest(&tableRouter{})

	_, err := e.SendCampaign(context.Background(), SendCampaignRequest{WorkspaceID: "ws1"})

	require.Error(t, err)
	var valErr *domain.ErrValidation
	require.ErrorAs(t, err, &valErr)
}

func TestEnqueuer_SendBulkEmail_QueuedModeInsertsOneRowPerEligibleContact(t *testing.T) {
	router := &tableRouter{
		contacts: []domain.Contact{
			{ID: "c1", Email: "a@example.com", Status: domain.ContactStatusSubscribed},
			{ID: "c2", Email: "b@example.com", Status: domain.ContactStatusUnsubscribed},
		},
	}
	e := newEnqueuerForTest(router)

	result, err := e.SendBulkEmail(context.Background(), SendBulkEmailRequest{
		WorkspaceID: "ws1",
		Subject:     "News",
		Body:        "hello body",
	})

	require.NoError(t, err)
	assert.Equal(t, "queued", result.Mode)
	assert.Equal(t, 1, result.Queued)
	require.Len(t, router.insertedSends, 1)
	assert.Equal(t, "a@example.com", router.insertedSends[0].ToEmail)
	assert.Equal(t, domain.BulkEmailCampaignID, router.insertedSends[0].CampaignID)
}

func TestEnqueuer_SendBulkEmail_RequiresSubjectAndBody(t *testing.T) {
	e := newEnqueuerForTest(&tableRouter{})

	_, err := e.SendBulkEmail(context.Background(), SendBulkEmailRequest{WorkspaceID: "ws1"})

	require.Error(t, err)
}

func TestEnqueuer_SendBulkEmail_ImmediateWithoutResendConfiguredErrors(t *testing.T) {
	router := &tableRouter{
		contacts: []domain.Contact{{ID: "c1", Email: "a@example.com", Status: domain.ContactStatusSubscribed}},
	}
	e := newEnqueuerForTest(router)

	_, err := e.SendBulkEmail(context.Background(), SendBulkEmailRequest{
		WorkspaceID:     "ws1",
		Subject:         "News",
		Body:            "hello",
		SendImmediately: true,
	})

	require.Error(t, err)
}
