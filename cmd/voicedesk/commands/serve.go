package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/voicedesk-ai/voicedesk/internal/autotask"
	"github.com/voicedesk-ai/voicedesk/internal/event"
	"github.com/voicedesk-ai/voicedesk/internal/eventlog"
	"github.com/voicedesk-ai/voicedesk/internal/gateway"
	"github.com/voicedesk-ai/voicedesk/internal/logging"
	"github.com/voicedesk-ai/voicedesk/internal/phonestatus"
	"github.com/voicedesk-ai/voicedesk/internal/session"
	"github.com/voicedesk-ai/voicedesk/internal/tenant"
	"github.com/voicedesk-ai/voicedesk/internal/tools"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the voicedesk gateway",
	Long: `Start the gateway: the session-managed RPC endpoint the voice agent
connects to, plus the background session sweeper and health reporter.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Port = servePort
	}

	lg := logging.Component("main")
	lg.Info().Str("version", Version).Msg("starting voicedesk gateway")

	tenants, err := tenant.Load(cfg.TenantsFile)
	if err != nil {
		return err
	}
	lg.Info().Int("tenants", tenants.Count()).Str("file", cfg.TenantsFile).Msg("tenant configuration loaded")

	log := eventlog.New(cfg.EventRetention)
	bus := event.NewBus()
	defer bus.Close()

	sessions := session.New(session.Config{
		MaxSessions:   cfg.MaxSessions,
		TTL:           cfg.SessionTTL.Std(),
		SweepInterval: cfg.SweepInterval.Std(),
	}, log, bus)

	ticketing := autotask.New(autotask.Config{
		BaseURL:  cfg.Ticketing.BaseURL,
		Username: cfg.Ticketing.Username,
		Secret:   cfg.Ticketing.Secret,
		APIKey:   cfg.Ticketing.APIKey,
		Spacing:  cfg.Ticketing.Spacing.Std(),
	})
	phones := phonestatus.New(phonestatus.Config{
		BaseURL: cfg.PhoneStatus.BaseURL,
		APIKey:  cfg.PhoneStatus.APIKey,
		Spacing: cfg.PhoneStatus.Spacing.Std(),
	})

	mcp := tools.New(tools.Deps{
		Ticketing: ticketing,
		Phones:    phones,
		Tenants:   tenants,
		Bus:       bus,
	})

	gwCfg := gateway.DefaultConfig()
	gwCfg.Port = cfg.Port
	gwCfg.AllowedOrigins = cfg.AllowedOrigins
	gwCfg.SharedSecret = cfg.SharedSecret
	gwCfg.Version = Version

	srv := gateway.New(gwCfg, sessions, log, bus, mcp)

	// Background tasks share one context; shutdown cancels them together
	// and waits for the sweeper so in-flight terminations complete.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var background sync.WaitGroup
	background.Add(1)
	go func() {
		defer background.Done()
		sessions.RunSweeper(ctx)
	}()
	background.Add(1)
	go func() {
		defer background.Done()
		srv.RunHealthReporter(ctx)
	}()
	background.Add(1)
	go func() {
		defer background.Done()
		if err := tenants.Watch(ctx); err != nil {
			lg.Warn().Err(err).Msg("tenant file watcher unavailable, hot reload disabled")
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		cancel()
		background.Wait()
		return err
	case sig := <-quit:
		lg.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error().Err(err).Msg("server shutdown error")
	}

	cancel()
	background.Wait()

	lg.Info().Msg("gateway stopped")
	return nil
}
