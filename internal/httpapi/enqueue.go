package httpapi

import (
	"net/http"

	"github.com/flowmail/flowmail-core/internal/domain"
	"github.com/flowmail/flowmail-core/internal/service"
)

type sendCampaignRequestBody struct {
	WorkspaceID   string                    `json:"workspaceId"`
	CampaignID    string                    `json:"campaignId"`
	MaxRecipients int                       `json:"maxRecipients"`
	PageSize      int                       `json:"pageSize"`
	SegmentJSON   *domain.SegmentDefinition `json:"segmentJson"`
	DryRun        bool                      `json:"dryRun"`
}

// SendCampaignHandler exposes the send-campaign one-shot enqueuer (spec.md §4.8, §6).
func (s *Server) SendCampaignHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	var body sendCampaignRequestBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}

	result, err := s.enqueuer.SendCampaign(r.Context(), service.SendCampaignRequest{
		WorkspaceID:   workspaceOrDefault(body.WorkspaceID),
		CampaignID:    body.CampaignID,
		MaxRecipients: clampInt(body.MaxRecipients, 10000, 10000),
		PageSize:      clampInt(body.PageSize, 1000, 1000),
		SegmentJSON:   body.SegmentJSON,
		DryRun:        body.DryRun,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	if result.DryRun {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"ok": true, "dryRun": true, "queued": result.Queued, "report": result.Report,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "queued": result.Queued})
}

type sendBulkEmailRequestBody struct {
	WorkspaceID     string   `json:"workspaceId"`
	Subject         string   `json:"subject"`
	Body            string   `json:"body"`
	ContactIDs      []string `json:"contactIds"`
	SendImmediately bool     `json:"sendImmediately"`
}

// SendBulkEmailHandler exposes the send-bulk-email one-shot enqueuer (spec.md §4.8, §6).
func (s *Server) SendBulkEmailHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	var body sendBulkEmailRequestBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}

	result, err := s.enqueuer.SendBulkEmail(r.Context(), service.SendBulkEmailRequest{
		WorkspaceID:     workspaceOrDefault(body.WorkspaceID),
		Subject:         body.Subject,
		Body:            body.Body,
		ContactIDs:      body.ContactIDs,
		SendImmediately: body.SendImmediately,
		FromEmail:       s.defaultFromEmail,
		FromName:        s.defaultFromName,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	if result.Mode == "instant" {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"ok": true, "mode": "instant", "sent": result.Sent, "failed": result.Failed,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "queued": result.Queued})
}
