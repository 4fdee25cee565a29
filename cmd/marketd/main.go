package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"dauction/engine"
	"dauction/server"
)

func main() {
	viper.SetDefault("listen_addr", ":8080")
	viper.SetDefault("cors_origin", "*")
	viper.SetDefault("auth_token", "")
	viper.SetDefault("default_max_rounds", engine.DefaultMaxRounds)
	viper.SetDefault("debug", false)

	viper.SetConfigName("marketd")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.SetEnvPrefix("marketd")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			panic("could not read configuration: " + err.Error())
		}
		// No config file is fine; defaults and env vars apply.
	}

	var log *zap.Logger
	if viper.GetBool("debug") {
		log = zap.Must(zap.NewDevelopment())
	} else {
		log = zap.Must(zap.NewProduction())
	}
	defer func() { _ = log.Sync() }()

	srv := server.New(server.Config{
		AuthToken:        viper.GetString("auth_token"),
		CORSOrigin:       viper.GetString("cors_origin"),
		DefaultMaxRounds: viper.GetInt("default_max_rounds"),
	}, log)

	listenAddr := viper.GetString("listen_addr")
	httpServer := &http.Server{
		Addr:              listenAddr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		srv.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	log.Info("listening", zap.String("addr", listenAddr))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("server exited", zap.Error(err))
	}
}
