package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lead-intake/internal/config"
	"github.com/sells-group/lead-intake/internal/intake"
	"github.com/sells-group/lead-intake/internal/metrics"
	"github.com/sells-group/lead-intake/internal/notify"
	"github.com/sells-group/lead-intake/internal/quiz"
	"github.com/sells-group/lead-intake/pkg/amocrm"
	"github.com/sells-group/lead-intake/pkg/telegram"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the submission API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := newServeEnv(cfg)
		if err != nil {
			return err
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           env.Handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		done := make(chan struct{})
		go func() {
			defer close(done)
			<-ctx.Done()
			zap.L().Info("shutting down server")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout(cfg.Server))
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
			if err := env.Dispatcher.Wait(shutdownCtx); err != nil {
				zap.L().Warn("notifications still pending at shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server",
			zap.Int("port", port),
			zap.Bool("crm_enabled", cfg.AmoCRM.Configured()),
			zap.Bool("telegram_enabled", cfg.Telegram.Configured()),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		<-done
		return nil
	},
}

// serveEnv holds everything the serve command wires together.
type serveEnv struct {
	Handler    http.Handler
	Dispatcher *notify.Dispatcher
	Metrics    *metrics.Metrics
}

// newServeEnv builds the CRM client, the notifier and the router from cfg.
func newServeEnv(cfg *config.Config) (*serveEnv, error) {
	catalog := quiz.DefaultCatalog()
	if path := cfg.Intake.QuizLabelsPath; path != "" {
		c, err := quiz.LoadCatalogFile(path)
		if err != nil {
			return nil, eris.Wrap(err, "serve: load quiz labels")
		}
		catalog = c
		zap.L().Debug("serve: quiz labels loaded", zap.String("path", path), zap.Int("landings", len(c.Landings)))
	}

	m := metrics.New(nil)

	dispatcher := notify.New(newTelegramClient(cfg.Telegram),
		notify.WithSiteURL(cfg.Telegram.SiteURL),
		notify.WithTimeout(cfg.Telegram.Timeout()),
		notify.WithHook(func(o notify.Outcome) {
			m.RecordNotification(string(o.Result))
		}),
	)

	svc := intake.NewService(newCRMClient(cfg.AmoCRM), dispatcher,
		intake.WithCatalog(catalog),
		intake.WithPhoneRegion(cfg.Intake.PhoneRegion),
		intake.WithRecorder(m),
	)

	handler := intake.NewRouter(intake.NewHandler(svc, cfg.Intake.MaxBodyBytes), intake.RouterConfig{
		AllowedOrigins: cfg.Intake.AllowedOrigins,
		Metrics:        m,
	})

	return &serveEnv{Handler: handler, Dispatcher: dispatcher, Metrics: m}, nil
}

func newCRMClient(c config.AmoCRMConfig) amocrm.Client {
	pipelineID, statusID := c.NumericIDs()
	opts := []amocrm.Option{amocrm.WithRateLimit(c.RateLimit)}
	if t := c.Timeout(); t > 0 {
		opts = append(opts, amocrm.WithHTTPClient(&http.Client{Timeout: t}))
	}
	return amocrm.NewClient(amocrm.Config{
		BaseURL:       c.BaseURL,
		Subdomain:     c.Subdomain,
		AccessToken:   c.AccessToken,
		PipelineID:    pipelineID,
		PipelineName:  c.PipelineName,
		StatusID:      statusID,
		StatusName:    c.StatusName,
		DefaultDomain: c.DefaultDomain,
		CacheTTL:      c.CacheTTL(),
	}, opts...)
}

func newTelegramClient(c config.TelegramConfig) telegram.Client {
	var opts []telegram.Option
	if c.BaseURL != "" {
		opts = append(opts, telegram.WithBaseURL(c.BaseURL))
	}
	return telegram.NewClient(c.BotToken, c.ChatID, opts...)
}

func shutdownTimeout(c config.ServerConfig) time.Duration {
	if c.ShutdownTimeout <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.ShutdownTimeout) * time.Second
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
