package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/httprate"
	log "github.com/sirupsen/logrus"

	config "github.com/avvvet/gym-services/configs"
	"github.com/avvvet/gym-services/internal/checkinsvc/broker"
	checkincfg "github.com/avvvet/gym-services/internal/checkinsvc/config"
	pg "github.com/avvvet/gym-services/internal/checkinsvc/db"
	"github.com/avvvet/gym-services/internal/checkinsvc/handlers"
	"github.com/avvvet/gym-services/internal/checkinsvc/service"
	"github.com/avvvet/gym-services/internal/checkinsvc/store"
	"github.com/avvvet/gym-services/internal/checkinsvc/ws"
	"github.com/avvvet/gym-services/internal/comm"
	mongodb "github.com/avvvet/gym-services/internal/db"
	natscli "github.com/avvvet/gym-services/internal/nats"
)

const SERVICE_NAME = "checkin"

func init() {
	instanceId := config.CreateUniqueInstance(SERVICE_NAME)
	config.Logging(SERVICE_NAME + "_service_" + instanceId)
	config.LoadEnv(SERVICE_NAME)
}

func main() {
	cfg, err := checkincfg.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// pg connection
	pool, err := pg.Connect(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer pool.Close()
	if err := pg.Migrate(ctx, pool); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}
	log.Info("pg connection established successfully")

	// ticket store: mongo when configured, process memory otherwise
	var tickets service.TicketStore
	var sweepers []service.Sweeper
	if cfg.MongoURI != "" {
		mdb, err := mongodb.ConnectToDB(ctx, cfg.MongoURI)
		if err != nil {
			log.Fatalf("Failed to connect to MongoDB: %v", err)
		}
		defer mdb.Client().Disconnect(context.Background())

		ts := store.NewMongoTicketStore(mdb)
		if err := ts.EnsureIndexes(ctx); err != nil {
			log.Fatalf("Failed to create ticket indexes: %v", err)
		}
		tickets = ts
		log.Info("mongo ticket store ready")
	} else {
		ts := store.NewMemoryTicketStore()
		tickets = ts
		sweepers = append(sweepers, ts)
		log.Warn("MONGODB_URI not set, tickets are kept in memory")
	}

	hub := ws.NewHub()

	// Connect to NATS. Notifications are best effort, so the service runs
	// without the bus rather than refusing to start.
	var notifier service.Notifier
	n, err := natscli.Connect(cfg.NatsURL, cfg.NatsToken, SERVICE_NAME+"_"+config.GetInstanceId())
	if err != nil {
		log.Errorf("Error: unable to connect to NATS server %v", err)
	} else {
		defer n.Conn.Close()
		log.Infof("NATS connection established successfully %s", n.Url)

		b := broker.NewBroker(n.Conn, func(status comm.TicketStatus) { hub.Push(status) })
		sub, err := b.Subscribe()
		if err != nil {
			log.Fatalf("Error: unable to subscribe to ticket status %v", err)
		}
		defer sub.Unsubscribe()
		notifier = b
	}

	members := store.NewMemberStore(pool)
	visitStore := store.NewVisitStore(pool)

	credentials := service.NewCredentialService(members, tickets, notifier, cfg, service.SystemClock)
	eligibility := service.NewEligibilityService(store.NewMembershipStore(pool), service.SystemClock)
	visits := service.NewVisitService(visitStore, credentials, eligibility, notifier, cfg, service.SystemClock)
	occupancy := service.NewOccupancy(visitStore.CountActive, cfg.OccupancyTTL, service.SystemClock)

	var reaper *service.Reaper
	if cfg.ReaperEnabled {
		reaper = service.NewReaper(cfg.ReaperInterval, append(sweepers, visits)...)
	} else if len(sweepers) > 0 {
		reaper = service.NewReaper(cfg.ReaperInterval, sweepers...)
	}
	if reaper != nil {
		reaper.Start(ctx)
		defer reaper.Stop()
	}

	// Setup router
	r := chi.NewRouter()
	c := config.CORS()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(config.CustomLoggerMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(c.Handler)

	// to protect the service api from any over requests
	r.Use(httprate.LimitByIP(cfg.RateLimit, 1*time.Minute))

	h := handlers.NewHandler(visits, credentials, occupancy, hub, cfg.JWTSecret, cfg.Port)
	h.SetRoutes(r)

	// Create server with timeout settings
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe(): %v", err)
		}
	}()
	log.Infof("%s service running at port %s", SERVICE_NAME, server.Addr)

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("%s service shutdown failed: %+v", SERVICE_NAME, err)
	}
	log.Infof("%s service gracefully stopped", SERVICE_NAME)
}
