package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pulsemarkets/pulse/backend/internal/auth"
	"github.com/pulsemarkets/pulse/backend/internal/config"
	"github.com/pulsemarkets/pulse/backend/internal/database"
	"github.com/pulsemarkets/pulse/backend/internal/identity"
	"github.com/pulsemarkets/pulse/backend/internal/logging"
	"github.com/pulsemarkets/pulse/backend/internal/profile"
	"github.com/pulsemarkets/pulse/backend/internal/server"
	"github.com/pulsemarkets/pulse/backend/internal/sessions"
	"github.com/pulsemarkets/pulse/backend/internal/storage"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pulse-api",
		Short: "Pulse accounts and profiles backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("auth-issuer", defaults.GetString("auth.issuer"), "Auth provider issuer")
	cmd.PersistentFlags().String("auth-audience", defaults.GetString("auth.audience"), "Auth provider audience (app id)")
	cmd.PersistentFlags().String("auth-jwks-url", defaults.GetString("auth.jwks_url"), "Auth provider JWKS URL")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("media-dir", defaults.GetString("storage.media_dir"), "Media storage directory")
	cmd.PersistentFlags().String("public-base-url", defaults.GetString("storage.public_base_url"), "Public base URL for media links")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("token.ttl_minutes"), "Backend token TTL in minutes")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Backend signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "auth.issuer", "auth-issuer")
	bindFlag(cmd, "auth.audience", "auth-audience")
	bindFlag(cmd, "auth.jwks_url", "auth-jwks-url")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "storage.media_dir", "media-dir")
	bindFlag(cmd, "storage.public_base_url", "public-base-url")
	bindFlag(cmd, "token.ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
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

	verifier, err := auth.NewProviderVerifier(auth.ProviderVerifierConfig{
		Audience:       appConfig.AuthAudience,
		JWKSURL:        appConfig.AuthJWKSURL,
		AllowedIssuers: []string{appConfig.AuthIssuer},
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	tokenManager := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        "pulse-auth",
		Audience:      "pulse-api",
		TokenTTL:      appConfig.TokenTTL,
	})

	identityService, err := identity.NewService(identity.ServiceConfig{
		Database:   db,
		IDProvider: identity.NewUUIDProvider(),
		Clock:      time.Now,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	blobStore, err := storage.NewFileStore(storage.FileStoreConfig{
		RootDir:       appConfig.MediaDir,
		PublicBaseURL: appConfig.PublicBaseURL,
	})
	if err != nil {
		return err
	}

	profileService, err := profile.NewService(profile.ServiceConfig{
		Database: db,
		Resolver: identityService,
		Blobs:    blobStore,
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	loginRecorder, err := sessions.NewRecorder(sessions.RecorderConfig{
		Database:   db,
		IDProvider: identity.NewUUIDProvider(),
		Clock:      time.Now,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Verifier:        verifier,
		TokenManager:    tokenManager,
		Identity:        identityService,
		Profiles:        profileService,
		LoginRecorder:   loginRecorder,
		OnboardingRules: profile.OnboardingRules{RequiredFields: appConfig.OnboardingRequired},
		MediaDir:        blobStore.RootDir(),
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
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
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
