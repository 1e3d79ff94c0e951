package httpapi

import (
	"net/http"

	"github.com/flowmail/flowmail-core/internal/service"
)

// Server bundles every worker/enqueuer and exposes them over net/http
// (spec.md §6). It holds no state of its own beyond what each service
// already owns in the store.
type Server struct {
	delivery          *service.DeliveryWorker
	leadScore         *service.LeadScoreWorker
	bestTime          *service.BestTimeWorker
	triggerScanner    *service.TriggerScanner
	automationWorker  *service.AutomationWorker
	campaignScheduler *service.CampaignScheduler
	enqueuer          *service.Enqueuer
	tracking          *service.TrackingService

	runnerToken      string
	defaultFromEmail string
	defaultFromName  string
	defaultClickTarget string
}

// Deps collects every dependency Server needs; passed as a single struct so
// wiring changes don't ripple through a long constructor signature.
type Deps struct {
	Delivery          *service.DeliveryWorker
	LeadScore         *service.LeadScoreWorker
	BestTime          *service.BestTimeWorker
	TriggerScanner    *service.TriggerScanner
	AutomationWorker  *service.AutomationWorker
	CampaignScheduler *service.CampaignScheduler
	Enqueuer          *service.Enqueuer
	Tracking          *service.TrackingService
	RunnerToken       string
	DefaultFromEmail  string
	DefaultFromName   string
}

// NewServer builds a Server from Deps.
func NewServer(d Deps) *Server {
	clickTarget := service.DefaultClickTarget
	return &Server{
		delivery:           d.Delivery,
		leadScore:          d.LeadScore,
		bestTime:           d.BestTime,
		triggerScanner:     d.TriggerScanner,
		automationWorker:   d.AutomationWorker,
		campaignScheduler:  d.CampaignScheduler,
		enqueuer:           d.Enqueuer,
		tracking:           d.Tracking,
		runnerToken:        d.RunnerToken,
		defaultFromEmail:   d.DefaultFromEmail,
		defaultFromName:    d.DefaultFromName,
		defaultClickTarget: clickTarget,
	}
}

// Routes registers every endpoint from spec.md §6 onto mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/email-delivery-worker", withCORS(s.DeliveryHandler))
	mux.HandleFunc("/lead-score-worker", withCORS(s.LeadScoreHandler))
	mux.HandleFunc("/best-time-worker", withCORS(s.BestTimeHandler))
	mux.HandleFunc("/automation-scanner", withCORS(s.AutomationScannerHandler))
	mux.HandleFunc("/automation-worker", withCORS(s.AutomationWorkerHandler))
	mux.HandleFunc("/campaign-scheduler", withCORS(s.CampaignSchedulerHandler))
	mux.HandleFunc("/send-campaign", withCORS(s.SendCampaignHandler))
	mux.HandleFunc("/send-bulk-email", withCORS(s.SendBulkEmailHandler))
	mux.HandleFunc("/track/open", withCORS(s.TrackOpenHandler))
	mux.HandleFunc("/track/click", withCORS(s.TrackClickHandler))
}
