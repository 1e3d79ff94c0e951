package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmail/flowmail-core/internal/domain"
	"github.com/flowmail/flowmail-core/internal/store"
	"github.com/flowmail/flowmail-core/pkg/logger"
)

func newLeadScoreWorkerForTest(f *fakePostgREST) *LeadScoreWorker {
	client := store.NewClient("https://x.test/rest/v1", "key", f, logger.NewNoop())
	return NewLeadScoreWorker(
		store.NewCursorRepository(client),
		store.NewContactEventRepository(client),
		store.NewContactRepository(client),
		logger.NewNoop(),
	)
}

func TestLeadScoreWorker_Process_AppliesDeltasAndTemperature(t *testing.T) {
	f := newFakePostgREST()
	occurred := time.Now().Add(-time.Minute)

	f.seed("contacts", []domain.Contact{{ID: "c1", WorkspaceID: "ws1", LeadScore: 10, Temperature: domain.TemperatureCold}})
	f.seed("contact_events", []domain.ContactEvent{
		{ID: "ev1", WorkspaceID: "ws1", ContactID: "c1", EventType: domain.EventPurchase, OccurredAt: occurred},
		{ID: "ev2", WorkspaceID: "ws1", ContactID: "c1", EventType: domain.EventEmailOpen, OccurredAt: occurred.Add(time.Second)},
	})

	w := newLeadScoreWorkerForTest(f)

	processed, updated, err := w.Process(context.Background(), "ws1", 500)
	require.NoError(t, err)
	assert.Equal(t, 2, processed)
	assert.Equal(t, 1, updated)

	var c domain.Contact
	require.True(t, f.row("contacts", "c1", &c))
	assert.Equal(t, 10+15+1, c.LeadScore)
	assert.Equal(t, domain.TemperatureForScore(10+15+1), c.Temperature)
}

func TestLeadScoreWorker_Process_ClampsScoreToZero(t *testing.T) {
	f := newFakePostgREST()
	occurred := time.Now().Add(-time.Minute)

	f.seed("contacts", []domain.Contact{{ID: "c1", WorkspaceID: "ws1", LeadScore: 5}})
	f.seed("contact_events", []domain.ContactEvent{
		{ID: "ev1", WorkspaceID: "ws1", ContactID: "c1", EventType: domain.EventPurchaseCancelled, OccurredAt: occurred},
	})

	w := newLeadScoreWorkerForTest(f)

	_, updated, err := w.Process(context.Background(), "ws1", 500)
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	var c domain.Contact
	require.True(t, f.row("contacts", "c1", &c))
	assert.Equal(t, 0, c.LeadScore)
}

func TestLeadScoreWorker_Process_NoEventsIsNoop(t *testing.T) {
	f := newFakePostgREST()
	w := newLeadScoreWorkerForTest(f)

	processed, updated, err := w.Process(context.Background(), "ws1", 500)
	require.NoError(t, err)
	assert.Equal(t, 0, processed)
	assert.Equal(t, 0, updated)
}
