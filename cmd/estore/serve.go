package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/vasiliy-maslov/estore/internal/archive"
	"github.com/vasiliy-maslov/estore/internal/auth"
	"github.com/vasiliy-maslov/estore/internal/cart"
	"github.com/vasiliy-maslov/estore/internal/catalog"
	"github.com/vasiliy-maslov/estore/internal/checkout"
	"github.com/vasiliy-maslov/estore/internal/config"
	"github.com/vasiliy-maslov/estore/internal/db"
	"github.com/vasiliy-maslov/estore/internal/events"
	"github.com/vasiliy-maslov/estore/internal/gateway"
	handler "github.com/vasiliy-maslov/estore/internal/handler/http"
	"github.com/vasiliy-maslov/estore/internal/order"
	"github.com/vasiliy-maslov/estore/internal/reconcile"
	"github.com/vasiliy-maslov/estore/internal/user"
)

func newServeCmd(cfg *config.Config) *cobra.Command {
	var migrateFirst bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if migrateFirst {
				if err := db.MigrateUp(cfg.Postgres); err != nil {
					return err
				}
			}
			return serve(cmd.Context(), cfg)
		},
	}

	cmd.Flags().BoolVar(&migrateFirst, "migrate", false, "apply pending migrations before starting")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	log.Info().Str("env", cfg.App.Env).Msg("Estore starting...")

	dbPool, err := db.New(ctx, cfg.Postgres)
	if err != nil {
		log.Error().Err(err).Msg("Failed to connect to database")
		return err
	}
	defer dbPool.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Error().Err(err).Str("addr", cfg.Redis.Addr).Msg("Failed to connect to Redis")
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	var store archive.Store = archive.Discard{}
	if cfg.Mongo.URI != "" {
		client, err := archive.Connect(ctx, cfg.Mongo.URI)
		if err != nil {
			log.Error().Err(err).Msg("Failed to connect to MongoDB")
			return err
		}
		defer func() {
			disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := client.Disconnect(disconnectCtx); err != nil {
				log.Warn().Err(err).Msg("Failed to disconnect from MongoDB")
			}
		}()

		mongoStore, err := archive.NewMongoStore(ctx, client, cfg.Mongo.Database, cfg.Mongo.Collection)
		if err != nil {
			return err
		}
		store = mongoStore
	} else {
		log.Warn().Msg("MONGODB_URI not set, gateway payloads will not be archived")
	}

	var publisher events.Publisher = events.Discard{}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = events.NewKafkaPublisher(events.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic), cfg.Kafka.Topic)
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("Publishing order events to Kafka")
	} else {
		log.Warn().Msg("KAFKA_BROKERS not set, order events will be dropped")
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close event publisher")
		}
	}()

	paystack := gateway.NewClient(cfg.Paystack.BaseURL, cfg.Paystack.SecretKey, cfg.Paystack.Timeout)

	userSvc := user.NewService(user.NewRepository(dbPool.Pool))
	catalogSvc := catalog.NewService(catalog.NewRepository(dbPool.Pool))
	cartSvc := cart.NewService(cart.NewRepository(rdb), catalogSvc)
	orderRepo := order.NewRepository(dbPool.Pool)
	orderSvc := order.NewService(orderRepo, publisher, cfg.Store.Tag)

	checkoutSvc := checkout.NewService(orderRepo, cartSvc, paystack, publisher, checkout.Options{
		Application: cfg.Store.Tag,
		PaymentFor:  cfg.Store.PaymentFor,
		Currency:    cfg.Store.Currency,
		PublicKey:   cfg.Paystack.PublicKey,
		CallbackURL: cfg.Paystack.CallbackURL,
	})
	reconcileSvc := reconcile.NewService(orderRepo, paystack, cartSvc, reconcile.NewRedisDeduper(rdb), store, publisher, cfg.Paystack.SecretKey)

	authenticator := auth.NewAuthenticator(auth.NewTokenVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer), userSvc)
	limiter := handler.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, 10*time.Minute)

	router := handler.NewRouter(handler.Handlers{
		Catalog:  handler.NewCatalogHandler(catalogSvc),
		Cart:     handler.NewCartHandler(cartSvc),
		Orders:   handler.NewOrderHandler(orderSvc, checkoutSvc, store),
		Payments: handler.NewPaymentHandler(reconcileSvc),
		Users:    handler.NewUserHandler(userSvc),
		Admin:    handler.NewAdminHandler(catalogSvc, userSvc, orderSvc),
	}, authenticator.Middleware, limiter)

	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  cfg.App.ReadTimeout,
		WriteTimeout: cfg.App.WriteTimeout,
		IdleTimeout:  cfg.App.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.App.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stopCh)

	select {
	case err := <-serverErr:
		if err != nil {
			log.Error().Err(err).Str("port", cfg.App.Port).Msg("Server failed")
			return err
		}
	case sig := <-stopCh:
		log.Info().Str("signal", sig.String()).Msg("Shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
		return err
	}

	log.Info().Msg("Estore stopped gracefully")
	return nil
}
