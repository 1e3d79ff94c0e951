package httpapi

import "net/http"

// transparentPixelGIF is a 1x1 transparent GIF, served by /track/open
// regardless of whether the send/contact lookup succeeds (spec.md §4.2,
// §7: "the tracking endpoint is total").
var transparentPixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00, 0x00,
	0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x21, 0xf9, 0x04, 0x01, 0x00, 0x00, 0x00,
	0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02,
	0x44, 0x01, 0x00, 0x3b,
}

// TrackOpenHandler serves /track/open?sid=...: it always returns the pixel,
// recording an open as a best-effort side effect (spec.md §4.2, §6).
func (s *Server) TrackOpenHandler(w http.ResponseWriter, r *http.Request) {
	sid := r.URL.Query().Get("sid")
	workspaceID := workspaceOrDefault(r.URL.Query().Get("workspaceId"))
	if sid != "" {
		s.tracking.RecordOpen(r.Context(), workspaceID, sid)
	}
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(transparentPixelGIF)
}

// TrackClickHandler serves /track/click?sid=&url=&bid=: it always redirects,
// recording a click as a best-effort side effect (spec.md §4.2, §6).
func (s *Server) TrackClickHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sid := q.Get("sid")
	clickURL := q.Get("url")
	bid := q.Get("bid")
	if clickURL == "" {
		clickURL = s.defaultClickTarget
	}
	workspaceID := workspaceOrDefault(q.Get("workspaceId"))
	if sid != "" {
		s.tracking.RecordClick(r.Context(), workspaceID, sid, clickURL, bid)
	}
	http.Redirect(w, r, clickURL, http.StatusFound)
}
