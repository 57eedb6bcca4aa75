package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	config "github.com/avvvet/gym-services/configs"
	"github.com/avvvet/gym-services/internal/checkinsvc/broker"
	checkincfg "github.com/avvvet/gym-services/internal/checkinsvc/config"
	pg "github.com/avvvet/gym-services/internal/checkinsvc/db"
	"github.com/avvvet/gym-services/internal/checkinsvc/service"
	"github.com/avvvet/gym-services/internal/checkinsvc/store"
	natscli "github.com/avvvet/gym-services/internal/nats"
)

// reapersvc closes abandoned visits for deployments that run checkinsvc
// with REAPER_ENABLED=false.
const SERVICE_NAME = "reaper"

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
	log.Info("pg connection established successfully")

	var notifier service.Notifier
	n, err := natscli.Connect(cfg.NatsURL, cfg.NatsToken, SERVICE_NAME+"_"+config.GetInstanceId())
	if err != nil {
		log.Errorf("Error: unable to connect to NATS server %v", err)
	} else {
		defer n.Conn.Close()
		log.Infof("NATS connection established successfully %s", n.Url)
		notifier = broker.NewBroker(n.Conn, nil)
	}

	// The reaper only closes visits; tickets are never touched here.
	credentials := service.NewCredentialService(store.NewMemberStore(pool), store.NewMemoryTicketStore(), notifier, cfg, service.SystemClock)
	eligibility := service.NewEligibilityService(store.NewMembershipStore(pool), service.SystemClock)
	visits := service.NewVisitService(store.NewVisitStore(pool), credentials, eligibility, notifier, cfg, service.SystemClock)

	reaper := service.NewReaper(cfg.ReaperInterval, visits)

	// first sweep right away instead of one interval after start
	if closed, err := reaper.RunOnce(ctx); err != nil {
		log.Errorf("initial sweep failed: %v", err)
	} else {
		log.Infof("initial sweep closed %d visit(s)", closed)
	}

	reaper.Start(ctx)
	log.Infof("%s service running, dwell ceiling %s, interval %s", SERVICE_NAME, cfg.DwellCeiling, cfg.ReaperInterval)

	<-ctx.Done()
	reaper.Stop()
	log.Infof("%s service gracefully stopped", SERVICE_NAME)
}
