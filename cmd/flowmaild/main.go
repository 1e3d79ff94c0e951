package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flowmail/flowmail-core/config"
	"github.com/flowmail/flowmail-core/internal/httpapi"
	"github.com/flowmail/flowmail-core/internal/service"
	"github.com/flowmail/flowmail-core/internal/store"
	"github.com/flowmail/flowmail-core/pkg/logger"
)

// defaultWorkspaceID is the single-tenant fallback the ticker-driven workers
// operate against (spec.md §9: the "default" workspace convention).
const defaultWorkspaceID = "default"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	appLogger := logger.NewLogger()
	appLogger.WithField("version", cfg.Version).Info("starting flowmaild")

	httpClient := &http.Client{Timeout: 15 * time.Second}
	db := store.NewWithHTTPClient(cfg.Supabase.URL, cfg.Supabase.ServiceRoleKey, httpClient, appLogger)

	templates := service.NewTemplateEngine()
	rewriter := service.NewLinkRewriter(cfg.Defaults.PublicFunctionsBaseURL, cfg.Security.UnsubscribeSigningKey)
	gateway := service.NewMailGateway(cfg.Mail.GatewayURL, cfg.Mail.GatewayToken, httpClient, appLogger)

	var resend *service.ResendSender
	if cfg.Mail.ResendAPIKey != "" {
		resend = service.NewResendSender(cfg.Mail.ResendAPIKey, httpClient)
	}

	delivery := service.NewDeliveryWorker(
		db.EmailSends, db.Campaigns, db.Contacts, db.Workspaces,
		templates, rewriter, gateway,
		cfg.Defaults.FromEmail, cfg.Defaults.FromName,
		appLogger,
	)
	leadScore := service.NewLeadScoreWorker(db.Cursors, db.Events, db.Contacts, appLogger)
	bestTime := service.NewBestTimeWorker(db.Cursors, db.Events, db.Contacts, appLogger)
	triggerScanner := service.NewTriggerScanner(db.Cursors, db.Events, db.Automations, db.Runs, db.Queue, appLogger)
	automationWorker := service.NewAutomationWorker(
		db.Queue, db.Runs, db.Automations, db.Contacts, db.Events, db.EmailSends,
		cfg.Defaults.TeamNotifyEmail, appLogger,
	)
	campaignScheduler := service.NewCampaignScheduler(db.Schedules, db.ABStates, db.Campaigns, db.Contacts, db.EmailSends, appLogger)
	tracking := service.NewTrackingService(db.EmailSends, db.Events, appLogger)
	enqueuer := service.NewEnqueuer(db.Campaigns, db.Contacts, db.EmailSends, resend, appLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	schedulers := []*service.TickerScheduler{
		service.NewTickerScheduler("email-delivery", defaultWorkspaceID, delivery, appLogger, time.Minute, 25),
		service.NewTickerScheduler("lead-score", defaultWorkspaceID, leadScore, appLogger, 2*time.Minute, 500),
		service.NewTickerScheduler("best-time", defaultWorkspaceID, bestTime, appLogger, 2*time.Minute, 500),
		service.NewTickerScheduler("automation-scanner", defaultWorkspaceID, triggerScanner, appLogger, time.Minute, 200),
		service.NewTickerScheduler("automation-worker", defaultWorkspaceID, automationWorker, appLogger, time.Minute, 25),
		service.NewTickerScheduler("campaign-scheduler", defaultWorkspaceID, campaignScheduler, appLogger, time.Minute, 10),
	}
	for _, s := range schedulers {
		s.Start(ctx)
	}

	apiServer := httpapi.NewServer(httpapi.Deps{
		Delivery:          delivery,
		LeadScore:         leadScore,
		BestTime:          bestTime,
		TriggerScanner:    triggerScanner,
		AutomationWorker:  automationWorker,
		CampaignScheduler: campaignScheduler,
		Enqueuer:          enqueuer,
		Tracking:          tracking,
		RunnerToken:       cfg.Security.RunnerToken,
		DefaultFromEmail:  cfg.Defaults.FromEmail,
		DefaultFromName:   cfg.Defaults.FromName,
	})

	mux := http.NewServeMux()
	apiServer.Routes(mux)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		appLogger.WithField("address", addr).Info("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithField("error", err.Error()).Fatal("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	appLogger.Info("shutting down")
	cancel()
	for _, s := range schedulers {
		s.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.WithField("error", err.Error()).Warn("http server shutdown did not complete cleanly")
	}
}
