package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/viper"

	"github.com/nkoub/recordlinkage/internal/config"
	"github.com/nkoub/recordlinkage/internal/logger"
)

func main() {
	// LINKAGE_LOG_JSON, LINKAGE_LOG_LEVEL, LINKAGE_DATA_DIR, LINKAGE_TASK_RETENTION
	env := viper.New()
	env.SetEnvPrefix(config.EnvPrefix)
	env.AutomaticEnv()
	env.SetDefault("log_level", "info")
	env.SetDefault("task_retention", DefaultTaskRetention)

	log, err := logger.New(logger.Options{
		JSON:  env.GetBool("log_json"),
		Level: env.GetString("log_level"),
	})
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	dataDir := env.GetString("data_dir")
	if dataDir != "" {
		if dataDir, err = filepath.Abs(dataDir); err != nil {
			log.Fatalw("resolve data dir", "error", err)
		}
	} else {
		log.Warnw("LINKAGE_DATA_DIR not set, csv and sqlite sources are disabled")
	}

	srv := newServer(log, dataDir)
	srv.retention = env.GetDuration("task_retention")

	httpServer := &http.Server{
		Addr:              ":" + port,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go srv.reapTasks(ctx, max(srv.retention/4, time.Second))

	go func() {
		log.Infow("record linkage server listening",
			"addr", "http://localhost:"+port, "data_dir", dataDir, "task_retention", srv.retention)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	log.Infow("shutting down")
	srv.cancelAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Errorw("shutdown", "error", err)
	}
}
