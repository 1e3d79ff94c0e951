package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// LinkRewriter rewrites outbound HTML so every link and open event routes
// back through the tracking endpoint (spec.md §4.1 step 5).
type LinkRewriter struct {
	publicFunctionsBaseURL string
	unsubscribeKey         string
}

// NewLinkRewriter builds a LinkRewriter. An empty baseURL disables rewriting
// entirely (spec.md: "if a public functions base URL is configured").
func NewLinkRewriter(publicFunctionsBaseURL, unsubscribeKey string) *LinkRewriter {
	return &LinkRewriter{publicFunctionsBaseURL: publicFunctionsBaseURL, unsubscribeKey: unsubscribeKey}
}

// Enabled reports whether tracking rewrites should run at all.
func (r *LinkRewriter) Enabled() bool {
	return r.publicFunctionsBaseURL != ""
}

// Rewrite rewrites every http(s) href to a click-tracking redirect,
// appends a 1x1 open-tracking pixel, and appends an unsubscribe footer.
func (r *LinkRewriter) Rewrite(htmlBody, sendID, workspaceID, contactID string) (string, error) {
	if !r.Enabled() {
		return htmlBody, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlBody))
	if err != nil {
		return "", fmt.Errorf("parse html for link rewriting: %w", err)
	}

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if rewritten, ok := r.rewriteHref(href, sendID); ok {
			s.SetAttr("href", rewritten)
		}
	})

	out, err := doc.Html()
	if err != nil {
		return "", fmt.Errorf("serialize rewritten html: %w", err)
	}

	out += fmt.Sprintf(`<img src="%s/track/open?sid=%s" width="1" height="1" alt="" style="display:none;">`,
		r.publicFunctionsBaseURL, url.QueryEscape(sendID))
	out += r.unsubscribeFooter(workspaceID, contactID)
	return out, nil
}

func (r *LinkRewriter) rewriteHref(href, sendID string) (string, bool) {
	if !strings.HasPrefix(href, "http://") && !strings.HasPrefix(href, "https://") {
		return "", false
	}
	// Preserve links that are already tracked (carry a bid= broadcast id),
	// per spec.md §4.1 step 5.
	if strings.Contains(href, "bid=") {
		return "", false
	}
	rewritten := fmt.Sprintf("%s/track/click?sid=%s&url=%s",
		r.publicFunctionsBaseURL, url.QueryEscape(sendID), url.QueryEscape(href))
	return rewritten, true
}

func (r *LinkRewriter) unsubscribeFooter(workspaceID, contactID string) string {
	token := SignUnsubscribeToken(r.unsubscribeKey, workspaceID, contactID, time.Now())
	unsubURL := fmt.Sprintf("%s/unsubscribe?token=%s", r.publicFunctionsBaseURL, url.QueryEscape(token))
	return fmt.Sprintf(`<p style="font-size:12px;color:#888;text-align:center;margin-top:24px;">`+
		`<a href="%s">Unsubscribe</a></p>`, unsubURL)
}

type unsubscribePayload struct {
	WS        string `json:"ws"`
	ContactID string `json:"contactId"`
	Exp       int64  `json:"exp"`
}

// SignUnsubscribeToken builds `base64url(payload) + "." + base64url(HMAC-SHA256(payload))`
// over `{ws, contactId, exp=now+1y}` (spec.md §4.1 step 5, §6).
func SignUnsubscribeToken(key, workspaceID, contactID string, now time.Time) string {
	payload := unsubscribePayload{WS: workspaceID, ContactID: contactID, Exp: now.AddDate(1, 0, 0).Unix()}
	payloadJSON, _ := json.Marshal(payload)
	payloadB64 := base64.RawURLEncoding.EncodeToString(payloadJSON)

	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(payloadB64))
	sigB64 := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))

	return payloadB64 + "." + sigB64
}

// VerifyUnsubscribeToken recomputes the HMAC and checks the expiry
// (spec.md §6: "Verified by recomputing HMAC and checking exp > now").
func VerifyUnsubscribeToken(key, token string, now time.Time) (workspaceID, contactID string, ok bool) {
	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	payloadB64, sigB64 := parts[0], parts[1]

	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(payloadB64))
	expectedSig := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expectedSig), []byte(sigB64)) {
		return "", "", false
	}

	payloadJSON, err := base64.RawURLEncoding.DecodeString(payloadB64)
	if err != nil {
		return "", "", false
	}
	var payload unsubscribePayload
	if err := json.Unmarshal(payloadJSON, &payload); err != nil {
		return "", "", false
	}
	if payload.Exp <= now.Unix() {
		return "", "", false
	}
	return payload.WS, payload.ContactID, true
}
