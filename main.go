package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"atm-app/auth"
	"atm-app/config"
	"atm-app/engine"
	"atm-app/handlers"
	"atm-app/security"
	"atm-app/storage"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg := config.Load()

	var store storage.Store
	var err error
	switch cfg.Backend {
	case "mysql":
		store, err = storage.OpenMySQL(cfg.MySQLDSN)
	case "json":
		store, err = storage.OpenJSON(cfg.DataDir)
	default:
		logger.Fatal("unknown storage backend", zap.String("backend", cfg.Backend))
	}
	if err != nil {
		logger.Fatal("open storage", zap.String("backend", cfg.Backend), zap.Error(err))
	}

	creds, err := security.NewCredentials(cfg.AdminPIN)
	if err != nil {
		logger.Fatal("admin credentials", zap.Error(err))
	}

	eng, err := engine.New(store, creds, logger, engine.Params{
		DefaultDailyLimit:  cfg.DefaultDailyLimit,
		DefaultPerTxnLimit: cfg.DefaultPerTxnLimit,
		MaxPINAttempts:     cfg.MaxPINAttempts,
	})
	if err != nil {
		logger.Fatal("engine init", zap.Error(err))
	}

	mgr := auth.NewManager(cfg.JWTSecret, cfg.SessionTTL)
	r := handlers.Router(handlers.New(eng, mgr, logger), mgr)

	// Every committed mutation is written through synchronously, so the
	// shutdown path only has to release the storage handles.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		logger.Info("shutting down")
		if err := store.Close(); err != nil {
			logger.Error("close storage", zap.Error(err))
		}
		logger.Sync()
		os.Exit(0)
	}()

	logger.Info("server is running", zap.String("addr", cfg.Addr), zap.String("backend", cfg.Backend))
	logger.Fatal("server stopped", zap.Error(http.ListenAndServe(cfg.Addr, r)))
}
