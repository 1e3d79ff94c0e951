package httpapi

import "net/http"

// batchRequest is the common decoded shape for every batch-style worker
// endpoint (spec.md §6: "{ workspaceId?: string (default "default"), … }").
type batchRequest struct {
	WorkspaceID string `json:"workspaceId"`
	Batch       int    `json:"batch"`
	Limit       int    `json:"limit"`
}

// DeliveryHandler exposes the email delivery worker (spec.md §4.1, §6).
func (s *Server) DeliveryHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	var req batchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	workspaceID := workspaceOrDefault(req.WorkspaceID)
	batch := clampInt(req.Batch, 25, 25)

	processed, err := s.delivery.Process(r.Context(), workspaceID, batch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "processed": processed})
}

// LeadScoreHandler exposes the lead-score cursor worker (spec.md §4.3, §6).
func (s *Server) LeadScoreHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	var req batchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	workspaceID := workspaceOrDefault(req.WorkspaceID)
	limit := clampInt(req.Limit, 500, 500)

	processedEvents, updatedContacts, err := s.leadScore.Process(r.Context(), workspaceID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok": true, "processedEvents": processedEvents, "updatedContacts": updatedContacts,
	})
}

// BestTimeHandler exposes the best-send-time cursor worker (spec.md §4.4, §6).
func (s *Server) BestTimeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	var req batchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	workspaceID := workspaceOrDefault(req.WorkspaceID)
	limit := clampInt(req.Limit, 500, 500)

	processedEvents, updatedContacts, err := s.bestTime.Process(r.Context(), workspaceID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok": true, "processedEvents": processedEvents, "updatedContacts": updatedContacts,
	})
}

// AutomationScannerHandler exposes the trigger scanner (spec.md §4.5, §6).
func (s *Server) AutomationScannerHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	var req batchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	workspaceID := workspaceOrDefault(req.WorkspaceID)
	limit := clampInt(req.Limit, 200, 200)

	processedEvents, startedRuns, err := s.triggerScanner.Process(r.Context(), workspaceID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok": true, "processedEvents": processedEvents, "startedRuns": startedRuns,
	})
}

// AutomationWorkerHandler exposes the automation queue interpreter, gated by
// an optional runner token (spec.md §4.6, §6: "x-flowmail-runner-token when
// configured").
func (s *Server) AutomationWorkerHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if s.runnerToken != "" && r.Header.Get("x-flowmail-runner-token") != s.runnerToken {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "runner token mismatch"})
		return
	}
	var req batchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	workspaceID := workspaceOrDefault(req.WorkspaceID)
	batch := clampInt(req.Batch, 25, 25)

	processed, err := s.automationWorker.Process(r.Context(), workspaceID, batch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "processed": processed})
}

// campaignSchedulerRequest adds the scheduler's two limit fields atop batchRequest.
type campaignSchedulerRequest struct {
	WorkspaceID     string `json:"workspaceId"`
	LimitSchedules  int    `json:"limitSchedules"`
	LimitRecipients int    `json:"limitRecipients"`
}

// CampaignSchedulerHandler exposes the per-recipient scheduler (spec.md §4.7, §6).
func (s *Server) CampaignSchedulerHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	var req campaignSchedulerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	workspaceID := workspaceOrDefault(req.WorkspaceID)
	limitSchedules := clampInt(req.LimitSchedules, 10, 10)
	limitRecipients := clampInt(req.LimitRecipients, 1000, 1000)

	processed, err := s.campaignScheduler.Process(r.Context(), workspaceID, limitSchedules, limitRecipients)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "processed": processed})
}
