package store

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmail/flowmail-core/internal/domain"
	"github.com/flowmail/flowmail-core/pkg/logger"
)

// fakeHTTPClient is a hand-written domain.HTTPClient fake: no mockgen
// dependency, just a function the test supplies per call.
type fakeHTTPClient struct {
	do func(req *http.Request) (*http.Response, error)
}

func (f *fakeHTTPClient) Do(req *http.Request) (*http.Response, error) {
	return f.do(req)
}

func jsonResponse(status int, body interface{}) *http.Response {
	buf, _ := json.Marshal(body)
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader(buf)),
		Header:     make(http.Header),
	}
}

func TestClient_SelectDecodesRows(t *testing.T) {
	client := NewClient("https://example.supabase.co/rest/v1", "key", &fakeHTTPClient{
		do: func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, http.MethodGet, req.Method)
			assert.Equal(t, "Bearer key", req.Header.Get("Authorization"))
			return jsonResponse(http.StatusOK, []map[string]string{{"id": "1"}}), nil
		},
	}, logger.NewNoop())

	var rows []map[string]string
	err := client.Select(context.Background(), "contacts", &rows, WithFilter("workspace_id", "eq", "ws1"))

	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "1", rows[0]["id"])
}

func TestClient_SelectMapsNonOKToErrStore(t *testing.T) {
	client := NewClient("https://example.supabase.co/rest/v1", "key", &fakeHTTPClient{
		do: func(req *http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusInternalServerError,
				Body:       io.NopCloser(bytes.NewReader([]byte(`{"message":"boom"}`))),
				Header:     make(http.Header),
			}, nil
		},
	}, logger.NewNoop())

	var rows []map[string]string
	err := client.Select(context.Background(), "contacts", &rows)

	require.Error(t, err)
	var storeErr *domain.ErrStore
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, http.StatusInternalServerError, storeErr.StatusCode)
}

func TestClient_UpsertSetsOnConflictQueryParam(t *testing.T) {
	var capturedQuery string
	client := NewClient("https://example.supabase.co/rest/v1", "key", &fakeHTTPClient{
		do: func(req *http.Request) (*http.Response, error) {
			capturedQuery = req.URL.RawQuery
			assert.Equal(t, "resolution=merge-duplicates,return=minimal", req.Header.Get("Prefer"))
			return jsonResponse(http.StatusNoContent, nil), nil
		},
	}, logger.NewNoop())

	err := client.Upsert(context.Background(), "email_sends", []map[string]string{{"id": "1"}}, "workspace_id,schedule_id,to_email")

	require.NoError(t, err)
	assert.Contains(t, capturedQuery, "on_conflict=workspace_id%2Cschedule_id%2Cto_email")
}

func TestClient_UpsertEmptyOnConflictOmitsParam(t *testing.T) {
	var capturedQuery string
	client := NewClient("https://example.supabase.co/rest/v1", "key", &fakeHTTPClient{
		do: func(req *http.Request) (*http.Response, error) {
			capturedQuery = req.URL.RawQuery
			return jsonResponse(http.StatusCreated, nil), nil
		},
	}, logger.NewNoop())

	err := client.Upsert(context.Background(), "email_sends", []map[string]string{{"id": "1"}}, "")

	require.NoError(t, err)
	assert.NotContains(t, capturedQuery, "on_conflict")
}
