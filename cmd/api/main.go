package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/creative-threads/threads-api/api"
	"github.com/creative-threads/threads-api/config"
	"github.com/creative-threads/threads-api/email"
	"github.com/creative-threads/threads-api/postgres"
	"github.com/creative-threads/threads-api/realtime"
	"github.com/creative-threads/threads-api/redis"
	"github.com/creative-threads/threads-api/token"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Could not load config", "error", err.Error())
		os.Exit(1)
	}

	pg, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("Could not connect to PostgreSQL", "error", err.Error())
		os.Exit(1)
	}

	cache, err := redis.Connect(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("Could not connect to Redis", "error", err.Error())
		os.Exit(1)
	}

	tokens := token.NewProvider([]byte(cfg.JWTSecret), cfg.JWTIssuer, cfg.TokenTTL())

	var mailer api.Mailer = &email.LogSender{Logger: logger}
	if cfg.SMTPAddr != "" {
		mailer = &email.SMTPSender{
			Addr:     cfg.SMTPAddr,
			From:     cfg.SMTPFrom,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
		}
	}

	hub := realtime.NewHub(notificationStore{pg: pg}, tokens, logger)

	restAPI := &api.API{
		Logger: logger,
		DB:     pg,
		Cache:  cache,
		Tokens: tokens,
		Mailer: mailer,
		Pusher: messagePusher{hub: hub},
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	mux.Handle("/", restAPI)

	lis, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		logger.Error("Could not listen", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		hub.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	logger.Info("Ready to accept traffic", "address", cfg.Addr)
	if err := srv.Serve(lis); err != nil && err != http.ErrServerClosed {
		logger.Error("Could not start server", "error", err)
		os.Exit(1)
	}
}

// notificationStore lets the hub persist socket-sent notifications through the
// same table the REST layer reads.
type notificationStore struct {
	pg *postgres.Postgres
}

func (s notificationStore) Create(ctx context.Context, n realtime.Notification) (realtime.Notification, error) {
	stored, err := s.pg.InsertNotification(ctx, api.Notification{
		SenderID:    n.SenderID,
		RecipientID: n.ReceiverID,
		Type:        n.Type,
		PostID:      n.PostID,
	})
	if err != nil {
		return realtime.Notification{}, err
	}
	return realtime.Notification{
		ID:         stored.ID,
		SenderID:   stored.SenderID,
		ReceiverID: stored.RecipientID,
		Type:       stored.Type,
		PostID:     stored.PostID,
		CreatedAt:  stored.CreatedAt,
	}, nil
}

// messagePusher announces REST-persisted messages on the receiver's live
// connection.
type messagePusher struct {
	hub *realtime.Hub
}

func (p messagePusher) PushMessage(receiverID string, msg api.Message) {
	p.hub.PushMessage(receiverID, realtime.ChatPayload{
		SenderID:  msg.SenderID,
		Message:   msg.Text,
		CreatedAt: msg.CreatedAt,
	})
}
