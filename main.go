package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	config "github.com/jsmidelov/TomasosTre/configs"
	"github.com/jsmidelov/TomasosTre/internal/auth"
	"github.com/jsmidelov/TomasosTre/internal/db"
	"github.com/jsmidelov/TomasosTre/internal/logger"
	"github.com/jsmidelov/TomasosTre/internal/notifier"
	"github.com/jsmidelov/TomasosTre/internal/server"
)

func main() {

	cfg := config.Load()

	zl, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zl.Sync()

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	conn, err := db.Open(cfg.Database)
	if err != nil {
		zl.Fatal("Failed to open database", zap.Error(err))
	}
	zl.Info("Database connected and migrated successfully", zap.String("driver", cfg.Database.Driver))

	ctx := context.Background()

	var oidc *auth.OIDC
	if cfg.OIDC.Issuer != "" {
		if oidc, err = auth.NewOIDC(ctx, cfg.OIDC, conn, zl); err != nil {
			zl.Fatal("Failed to set up sign-in", zap.Error(err))
		}
	} else {
		zl.Warn("OIDC_ISSUER not set, account routes disabled")
	}

	notifiers := notifier.Multi{notifier.NewSMSNotifier(config.LoadAfricaTalkingConfig())}
	if email, err := notifier.NewEmailNotifier(ctx, config.LoadEmailConfig()); err != nil {
		zl.Warn("Order confirmation emails disabled", zap.Error(err))
	} else {
		notifiers = append(notifiers, email)
	}

	r := server.NewRouter(server.Deps{
		DB:            conn,
		Log:           zl,
		SessionSecret: cfg.SessionSecret,
		AllowOrigins:  cfg.AllowOrigins,
		Notifier:      notifiers,
		OIDC:          oidc,
		SessionStore:  server.NewSessionStore(conn, cfg.SessionSecret, true),
	})

	if err := r.Run(":" + cfg.Port); err != nil {
		zl.Fatal("Server stopped", zap.Error(err))
	}
}
