package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"capgate.org/internal/auth"
	"capgate.org/internal/config"
	"capgate.org/internal/grpcauth"
	"capgate.org/internal/httpapi"
	"capgate.org/internal/oauth"
	"capgate.org/internal/obs"
	"capgate.org/internal/store/memory"
	"capgate.org/internal/store/pg"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	log := obs.Logger()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("load config")
	}
	if err := obs.SetLevel(cfg.LogLevel); err != nil {
		log.WithError(err).Warn("invalid log level, keeping default")
	}
	obs.Init()
	obs.InitBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		credentials auth.Store
		readiness   interface{ Check(context.Context) error }
	)
	if cfg.DatabaseURL != "" {
		pgStore, err := pg.Open(cfg.DatabaseURL)
		if err != nil {
			log.WithError(err).Fatal("open database")
		}
		defer pgStore.Close()
		credentials, readiness = pgStore, pgStore
	} else {
		log.Warn("DATABASE_URL not set, using in-memory credential store")
		credentials = memory.New()
	}

	roles, err := config.LoadRoles(cfg.RolesFile)
	if err != nil {
		log.WithError(err).Fatal("load roles")
	}
	registry, err := auth.NewRegistry(credentials, 0)
	if err != nil {
		log.WithError(err).Fatal("build registry")
	}
	seedCtx, cancelSeed := context.WithTimeout(ctx, 10*time.Second)
	if _, err := registry.Seed(seedCtx, roles); err != nil {
		log.WithError(err).Fatal("seed roles")
	}
	cancelSeed()

	tokens, err := auth.NewTokenService(cfg.Secret, cfg.TokenOptions()...)
	if err != nil {
		log.WithError(err).Fatal("build token service")
	}
	hasher, err := auth.NewHasher(cfg.BcryptCost)
	if err != nil {
		log.WithError(err).Fatal("build hasher")
	}
	authn, err := auth.NewAuthenticator(credentials, registry, tokens, hasher)
	if err != nil {
		log.WithError(err).Fatal("build authenticator")
	}

	var resolver httpapi.EmailResolver
	if cfg.OAuth.Enabled() {
		r, err := oauth.New(ctx, cfg.OAuth)
		if err != nil {
			log.WithError(err).Fatal("configure oauth")
		}
		resolver = r
	}

	api, err := httpapi.New(httpapi.Options{
		Authenticator:    authn,
		Readiness:        readiness,
		OAuth:            resolver,
		Roles:            roles,
		Version:          version,
		SigninRatePerSec: cfg.SigninRatePerSec,
		SigninBurst:      cfg.SigninBurst,
	})
	if err != nil {
		log.WithError(err).Fatal("build http api")
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		log.WithFields(logrus.Fields{"addr": srv.Addr, "version": version, "single_use": tokens.SingleUse()}).Info("http listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http listen")
		}
	}()

	var grpcSrv *grpc.Server
	if cfg.GRPCAddr != "" {
		grpcSrv = newGRPCServer(tokens)
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			log.WithError(err).Fatal("grpc listen")
		}
		go func() {
			log.WithField("addr", cfg.GRPCAddr).Info("grpc listening")
			if err := grpcSrv.Serve(lis); err != nil {
				log.WithError(err).Error("grpc serve")
			}
		}()
	}

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	log.Info("stopped")
}

func newGRPCServer(tokens *auth.TokenService) *grpc.Server {
	policy := grpcauth.Policy{
		Public: map[string]bool{
			"/grpc.health.v1.Health/Check": true,
			"/grpc.health.v1.Health/Watch": true,
		},
	}
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcauth.UnaryServerInterceptor(tokens, policy)),
		grpc.ChainStreamInterceptor(grpcauth.StreamServerInterceptor(tokens, policy)),
	)
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return srv
}
