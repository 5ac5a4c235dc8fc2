package main

/*
blipee-console — Console API: очередь решений HITL, управление парком
агентов, дашборд, след действий. Отдельный процесс от воркера; общается
с ним только через Postgres и Redis.
*/

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/blipee-dev/blipee-orchestrator/internal/console/handler"
	"github.com/blipee-dev/blipee-orchestrator/internal/console/server"
	"github.com/blipee-dev/blipee-orchestrator/internal/console/service"
	"github.com/blipee-dev/blipee-orchestrator/internal/infra"
	"github.com/blipee-dev/blipee-orchestrator/internal/infra/auth"
	"github.com/blipee-dev/blipee-orchestrator/internal/repository/postgres"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		return err
	}
	defer logger.Sync()

	// 1. Ресурсы
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	repo, err := postgres.New(ctx, cfg.Database)
	if err != nil {
		cancel()
		return err
	}
	defer repo.Close()
	if err := repo.Ping(ctx); err != nil {
		cancel()
		return fmt.Errorf("database unreachable: %w", err)
	}
	cancel()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	// 2. RS256 ключи: публичный — проверка, приватный — выпуск токенов
	publicKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
	if err != nil {
		return fmt.Errorf("auth public key: %w", err)
	}
	privateKey, err := auth.ParseRSAPrivateKey(cfg.Auth.PrivateKey)
	if err != nil {
		return fmt.Errorf("auth private key: %w", err)
	}

	// 3. Сервисы и обработчики (Dependency Injection)
	validator := auth.NewBaseValidator(publicKey)
	consoleService := service.NewConsoleService(rdb, repo, validator, logger)
	authService := service.NewAuthService(repo, privateKey, cfg.Auth.TokenTTL)

	srv := server.NewConsoleServer(
		cfg,
		logger,
		consoleService,
		handler.NewAuthHandler(authService),
		handler.NewAgentHandler(consoleService),
		handler.NewApprovalHandler(consoleService),
		handler.NewDashboardHandler(consoleService),
		handler.NewAuditHandler(consoleService),
		handler.NewMessageHandler(consoleService),
	)

	// 4. HTTP сервер + graceful shutdown
	httpSrv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      srv,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("console API started", zap.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	<-stop
	logger.Info("console API stopping...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	logger.Info("console API exited properly")
	return nil
}
