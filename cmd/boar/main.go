// Command boar runs the back-office automation runtime: the HTTP surface,
// the scheduled monitors and the employee chat gateway, all sharing one
// ERP gateway and one LLM orchestrator.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/backoffice-suite/boar/pkg/agent"
	"github.com/backoffice-suite/boar/pkg/analysis"
	"github.com/backoffice-suite/boar/pkg/api"
	"github.com/backoffice-suite/boar/pkg/config"
	"github.com/backoffice-suite/boar/pkg/erp"
	"github.com/backoffice-suite/boar/pkg/llm"
	"github.com/backoffice-suite/boar/pkg/notify"
	"github.com/backoffice-suite/boar/pkg/otp"
	"github.com/backoffice-suite/boar/pkg/scheduler"
	"github.com/backoffice-suite/boar/pkg/telegram"
	"github.com/backoffice-suite/boar/pkg/version"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("Fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()
	setupLogging()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("Starting", "version", version.Full())

	erpClient := erp.NewClient(cfg.ERP)
	llmClient, err := llm.New(cfg.LLM)
	if err != nil {
		return err
	}

	webhookSender := notify.NewWebhookSender(cfg.Webhook.Secret, version.AppName, cfg.Webhook.Timeout)
	emailService := notify.NewEmailService(cfg.SMTP)
	notifier := notify.NewNotifier(webhookSender, emailService, cfg.Webhook)

	memory := llm.NewMemory(llm.DefaultMemoryCapacity)
	authenticator := otp.New(erpClient, otp.NewERPDirectory(erpClient), emailService, memory, cfg.OTPDemoMode)

	registry := agent.NewRegistry()
	tools := agent.NewTools(erpClient, authenticator)
	if err := tools.RegisterAll(registry); err != nil {
		return err
	}
	loop := agent.NewLoop(llmClient, registry, memory)
	surface := agent.NewSurface(authenticator, loop)

	analysisService := analysis.NewService(erpClient, llmClient, notifier, cfg.ManagerEmails)
	sched, err := scheduler.New(cfg.SchedulerTimezone)
	if err != nil {
		return err
	}
	if err := analysisService.RegisterJobs(sched); err != nil {
		return err
	}

	bot, err := telegram.New(cfg.TelegramBotToken, surface, authenticator)
	if err != nil {
		return err
	}

	server := api.NewServer(api.Deps{
		Config:    cfg,
		ERP:       erpClient,
		LLM:       llmClient,
		Surface:   surface,
		Analysis:  analysisService,
		Scheduler: sched,
		Auth:      authenticator,
		Notifier:  notifier,
	})

	// first ERP contact up front so a bad credential fails loudly at boot
	bootCtx, cancelBoot := context.WithTimeout(context.Background(), cfg.ERP.Timeout)
	if err := erpClient.Authenticate(bootCtx); err != nil {
		slog.Warn("ERP not reachable at startup, will retry on first call", "error", err)
	} else {
		slog.Info("ERP connected",
			"version", erpClient.ServerVersion(),
			"uid", erpClient.UserID(),
			"models", len(erpClient.AvailableModels()))
	}
	cancelBoot()

	sched.Start()

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		if err := server.Start(); err != nil {
			errCh <- err
		}
	}()
	go func() {
		if err := bot.Run(runCtx); err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("Shutting down", "signal", sig.String())
	case err := <-errCh:
		slog.Error("Component failed, shutting down", "error", err)
	}

	cancel()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown failed", "error", err)
	}
	if err := sched.Shutdown(shutdownCtx); err != nil {
		slog.Error("Scheduler shutdown failed", "error", err)
	}
	slog.Info("Stopped")
	return nil
}

func setupLogging() {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}
