package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/affiliatedesk/internal/affiliates"
	"github.com/MarcoPoloResearchLab/affiliatedesk/internal/auth"
	"github.com/MarcoPoloResearchLab/affiliatedesk/internal/config"
	"github.com/MarcoPoloResearchLab/affiliatedesk/internal/database"
	"github.com/MarcoPoloResearchLab/affiliatedesk/internal/logging"
	"github.com/MarcoPoloResearchLab/affiliatedesk/internal/server"
	"github.com/MarcoPoloResearchLab/affiliatedesk/internal/users"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

func (app *cli) newServeCommand() *cobra.Command {
	var seedPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the affiliate REST API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runServer(cmd.Context(), seedPath)
		},
	}

	defaults := config.NewViper()
	cmd.Flags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.Flags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.Flags().Int("token-ttl-minutes", defaults.GetInt("token.ttl_minutes"), "Session token TTL in minutes")
	cmd.Flags().String("signing-secret", "", "Session signing secret (overrides env)")
	cmd.Flags().StringSlice("cors-allowed-origins", defaults.GetStringSlice("cors.allowed_origins"), "Origins allowed to call the API")
	cmd.Flags().StringVar(&seedPath, "seed", "", "JSON file of affiliates inserted when the table is empty")

	app.bindFlag(cmd.Flags().Lookup("http-address"), "http.address")
	app.bindFlag(cmd.Flags().Lookup("database-path"), "database.path")
	app.bindFlag(cmd.Flags().Lookup("token-ttl-minutes"), "token.ttl_minutes")
	app.bindFlag(cmd.Flags().Lookup("signing-secret"), "auth.signing_secret")
	app.bindFlag(cmd.Flags().Lookup("cors-allowed-origins"), "cors.allowed_origins")
	return cmd
}

func (app *cli) runServer(ctx context.Context, seedPath string) error {
	appConfig, err := config.Load(app.viper)
	if err != nil {
		return err
	}

	logger, err := logging.NewLoggerWithEncoding(appConfig.LogLevel, appConfig.LogEncoding)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	handler, affiliateService, err := buildAPI(db, appConfig, logger)
	if err != nil {
		return err
	}

	if seedPath != "" {
		if err := seedAffiliates(ctx, affiliateService, seedPath, logger); err != nil {
			return err
		}
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("server stopping")
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// buildAPI wires the services behind the HTTP handler.
func buildAPI(db *gorm.DB, appConfig config.AppConfig, logger *zap.Logger) (http.Handler, *affiliates.Service, error) {
	secret := []byte(appConfig.AuthSigningSecret)
	tokenIssuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: secret,
		Issuer:        auth.DefaultIssuer,
		Audience:      auth.DefaultAudience,
		TokenTTL:      appConfig.TokenTTL,
	})
	if err != nil {
		return nil, nil, err
	}
	tokenValidator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: secret,
		Issuer:        auth.DefaultIssuer,
		Audience:      auth.DefaultAudience,
	})
	if err != nil {
		return nil, nil, err
	}

	affiliateService, err := affiliates.NewService(affiliates.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: affiliates.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return nil, nil, err
	}
	userService, err := users.NewService(users.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: affiliates.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return nil, nil, err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		TokenIssuer:    tokenIssuer,
		TokenValidator: tokenValidator,
		Users:          userService,
		Affiliates:     affiliateService,
		Logger:         logger,
		AllowedOrigins: appConfig.CORSAllowedOrigins,
	})
	if err != nil {
		return nil, nil, err
	}
	return handler, affiliateService, nil
}

func seedAffiliates(ctx context.Context, service *affiliates.Service, path string, logger *zap.Logger) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}
	var records []affiliates.Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return fmt.Errorf("decode seed file %s: %w", path, err)
	}
	inserted, err := service.Seed(ctx, records)
	if err != nil {
		return err
	}
	logger.Info("affiliates seeded", zap.String("path", path), zap.Int("inserted", inserted))
	return nil
}
