package domain

import "net/http"

// HTTPClient abstracts *http.Client so outbound callers (the store adapter,
// the mail gateway client, the tracking-link rewriter) can be exercised
// against fakes in tests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}
