package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/text"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/emilythestrangee/municipality-reporter/backend/internal/auth"
	"github.com/emilythestrangee/municipality-reporter/backend/internal/config"
	"github.com/emilythestrangee/municipality-reporter/backend/internal/database"
	"github.com/emilythestrangee/municipality-reporter/backend/internal/handlers"
	"github.com/emilythestrangee/municipality-reporter/backend/internal/identity"
	"github.com/emilythestrangee/municipality-reporter/backend/internal/models"
	"github.com/emilythestrangee/municipality-reporter/backend/internal/notify"
	"github.com/emilythestrangee/municipality-reporter/backend/internal/photos"
	"github.com/emilythestrangee/municipality-reporter/backend/internal/reports"
	"github.com/emilythestrangee/municipality-reporter/backend/internal/server"
	"github.com/emilythestrangee/municipality-reporter/backend/internal/store"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:           "reporter",
	Short:         "Municipality issue reporting backend",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = config.Load(); err != nil {
			return err
		}
		level, err := log.ParseLevel(cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
		log.SetHandler(text.New(os.Stderr))
		log.SetLevel(level)
		if cfg.LogLevel == "debug" {
			gin.SetMode(gin.DebugMode)
		} else {
			gin.SetMode(gin.ReleaseMode)
		}
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the notification dispatcher",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _, err := openDatabase(cmd.Context())
		if err != nil {
			return err
		}
		return db.Close()
	},
}

var promoteCmd = &cobra.Command{
	Use:   "promote <email>",
	Short: "Grant the admin role to an existing user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, gdb, err := openDatabase(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		if err := store.New(gdb).SetRole(cmd.Context(), args[0], models.RoleAdmin); err != nil {
			return err
		}
		log.WithField("email", args[0]).Info("User promoted to admin")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, promoteCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.WithError(err).Error("reporter failed")
		os.Exit(1)
	}
}

// openDatabase connects, migrates and installs constraints.
func openDatabase(ctx context.Context) (*database.Database, *gorm.DB, error) {
	db, err := database.NewDatabase(cfg.DSN())
	if err != nil {
		return nil, nil, err
	}
	gdb, err := db.Gorm()
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	if err := database.Migrate(gdb); err != nil {
		db.Close()
		return nil, nil, err
	}
	if err := db.EnsureConstraints(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return db, gdb, nil
}

func newGateway() (notify.Gateway, error) {
	switch cfg.PushGateway {
	case "expo":
		return notify.NewExpoGateway(cfg.ExpoPushURL), nil
	case "amqp":
		return notify.NewAMQPGateway(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPRoutingKey)
	default:
		return notify.LogGateway{}, nil
	}
}

func serve(ctx context.Context) error {
	db, gdb, err := openDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return fmt.Errorf("error creating upload dir: %w", err)
	}

	gateway, err := newGateway()
	if err != nil {
		return err
	}
	if c, ok := gateway.(io.Closer); ok {
		defer c.Close()
	}

	st := store.New(gdb, store.WithVoteCooldown(cfg.VoteCooldown))
	tokens := auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL)
	ids := identity.NewProvider(gdb, tokens)
	objects := photos.NewFileStore(cfg.UploadDir, "/uploads")
	dispatcher := notify.NewDispatcher(st, gateway, cfg.DispatchInterval)
	svc := reports.NewService(st, objects, ids, dispatcher)

	srv := server.New(db, handlers.NewHandler(svc, ids), tokens, cfg.UploadDir).HTTPServer(cfg.Port)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return dispatcher.Run(ctx)
	})
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("Server exited")
	return nil
}
