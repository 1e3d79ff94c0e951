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

func newBestTimeWorkerForTest(f *fakePostgREST) *BestTimeWorker {
	client := store.NewClient("https://x.test/rest/v1", "key", f, logger.NewNoop())
	return NewBestTimeWorker(
		store.NewCursorRepository(client),
		store.NewContactEventRepository(client),
		store.NewContactRepository(client),
		logger.NewNoop(),
	)
}

func TestBucketMinute(t *testing.T) {
	assert.Equal(t, 0, bucketMinute(0))
	assert.Equal(t, 15, bucketMinute(10))
	assert.Equal(t, 15, bucketMinute(22))
	assert.Equal(t, 45, bucketMinute(59))
}

func TestBestTimeWorker_Process_PicksHourWithMostOpens(t *testing.T) {
	f := newFakePostgREST()
	base := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)

	f.seed("contacts", []domain.Contact{{ID: "c1", WorkspaceID: "ws1", Timezone: "UTC"}})
	f.seed("contact_events", []domain.ContactEvent{
		{ID: "ev1", WorkspaceID: "ws1", ContactID: "c1", EventType: domain.EventEmailOpen, OccurredAt: base.Add(9 * time.Hour)},
		{ID: "ev2", WorkspaceID: "ws1", ContactID: "c1", EventType: domain.EventEmailOpen, OccurredAt: base.Add(9*time.Hour + time.Minute)},
		{ID: "ev3", WorkspaceID: "ws1", ContactID: "c1", EventType: domain.EventEmailOpen, OccurredAt: base.Add(14 * time.Hour)},
	})

	w := newBestTimeWorkerForTest(f)

	processed, updated, err := w.Process(context.Background(), "ws1", 500)
	require.NoError(t, err)
	assert.Equal(t, 3, processed)
	assert.Equal(t, 1, updated)

	var c domain.Contact
	require.True(t, f.row("contacts", "c1", &c))
	require.NotNil(t, c.BestSendHour)
	assert.Equal(t, 9, *c.BestSendHour, "hour 9 has two opens against one at hour 14")
}

func TestBestTimeWorker_Process_NoEventsIsNoop(t *testing.T) {
	f := newFakePostgREST()
	w := newBestTimeWorkerForTest(f)

	processed, updated, err := w.Process(context.Background(), "ws1", 500)
	require.NoError(t, err)
	assert.Equal(t, 0, processed)
	assert.Equal(t, 0, updated)
}
