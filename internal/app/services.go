package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wainbox/internal/auth"
	"wainbox/internal/broadcast"
	"wainbox/internal/config"
	"wainbox/internal/locks"
	"wainbox/internal/repo"
	"wainbox/internal/services"
	"wainbox/internal/whatsapp"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const (
	relayRetryAttempts = 5
	relayRetryDelay    = 2 * time.Second
	redisPingTimeout   = 5 * time.Second
)

// Services holds all application services
type Services struct {
	Config *config.Settings
	DB     *gorm.DB
	Redis  redis.UniversalClient

	UserRepo         *repo.UserRepository
	NumberRepo       *repo.NumberRepository
	ConversationRepo *repo.ConversationRepository
	MessageRepo      *repo.MessageRepository

	AuthService      *auth.Service
	LockManager      *locks.Manager
	Broadcaster      *broadcast.Broadcaster
	IngestionService *services.IngestionService
	ReplyService     *services.ReplyService
	InboxService     *services.InboxService
}

// NewServices connects to Redis and, when configured, the AMQP relay, then
// builds the services container
func NewServices(ctx context.Context, cfg *config.Settings, db *gorm.DB) (*Services, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		// Lock operations fail per request until Redis is reachable.
		log.Warn().Err(err).Str("addr", opts.Addr).Msg("Redis not reachable at startup")
	}

	sender := whatsapp.NewClient(cfg.GraphAPIBase, cfg.GraphAPIVersion, cfg.WhatsAppAccessToken, cfg.ProviderTimeout)
	s := Build(cfg, db, client, sender)

	if cfg.RelayEnabled() {
		relay, err := broadcast.NewRelay(ctx, broadcast.RelayOptions{
			URL:           cfg.AMQPURL,
			Exchange:      cfg.AMQPExchange,
			RetryAttempts: relayRetryAttempts,
			Delay:         relayRetryDelay,
		}, s.Broadcaster)
		if err != nil {
			log.Warn().Err(err).Msg("AMQP relay unavailable, broadcasting to local subscribers only")
		} else {
			s.Broadcaster.SetRelay(relay)
		}
	}

	return s, nil
}

// Build wires the services container over already opened stores
func Build(cfg *config.Settings, db *gorm.DB, client redis.UniversalClient, sender services.Sender) *Services {
	userRepo := repo.NewUserRepository(db)
	numberRepo := repo.NewNumberRepository(db)
	conversationRepo := repo.NewConversationRepository(db)
	messageRepo := repo.NewMessageRepository(db)

	lockManager := locks.NewManager(client, locks.DefaultTTL)
	broadcaster := broadcast.New()

	return &Services{
		Config: cfg,
		DB:     db,
		Redis:  client,

		UserRepo:         userRepo,
		NumberRepo:       numberRepo,
		ConversationRepo: conversationRepo,
		MessageRepo:      messageRepo,

		AuthService:      auth.NewService(userRepo, cfg.JWTSecret, cfg.JWTAccessDuration),
		LockManager:      lockManager,
		Broadcaster:      broadcaster,
		IngestionService: services.NewIngestionService(numberRepo, conversationRepo, broadcaster),
		ReplyService:     services.NewReplyService(numberRepo, conversationRepo, lockManager, sender),
		InboxService:     services.NewInboxService(numberRepo, conversationRepo, messageRepo, lockManager),
	}
}

// Close releases the realtime relay, Redis and the database pool
func (s *Services) Close() error {
	var errs []error
	if err := s.Broadcaster.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close broadcaster: %w", err))
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if s.DB != nil {
		if sqlDB, err := s.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close database: %w", err))
			}
		}
	}
	return errors.Join(errs...)
}
