package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/joho/godotenv"

	"github.com/dalbhanjan-om/BetfairOdds-Backend/internal/domain"
	"github.com/dalbhanjan-om/BetfairOdds-Backend/internal/engine"
	"github.com/dalbhanjan-om/BetfairOdds-Backend/internal/execution"
	"github.com/dalbhanjan-om/BetfairOdds-Backend/internal/infra"
	"github.com/dalbhanjan-om/BetfairOdds-Backend/internal/infra/betfair"
	"github.com/dalbhanjan-om/BetfairOdds-Backend/internal/infra/storage"
	"github.com/dalbhanjan-om/BetfairOdds-Backend/internal/server"
	"github.com/dalbhanjan-om/BetfairOdds-Backend/internal/service"
	"github.com/dalbhanjan-om/BetfairOdds-Backend/internal/sim"
)

// Bootstrap orchestrates the application startup sequence.
type Bootstrap struct {
	Config     *infra.Config
	Client     *betfair.Client
	Placer     domain.OrderPlacer
	Audit      *storage.AuditLog // nil when disabled
	Keeper     *betfair.SessionKeeper
	Supervisor *engine.Supervisor
	Markets    *service.MarketService
	Hub        *server.Hub
	Server     *server.Server
}

// NewBootstrap creates a new Bootstrap instance.
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize loads configuration and wires every component. Nothing is
// connected to the exchange yet; workers start on demand through the
// control surface.
func (b *Bootstrap) Initialize() error {
	slog.Info("🚀 Bootstrapping BetfairOdds backend...")

	// Local .env is optional; real deployments use the environment.
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig("configs/config.yaml")
	if err != nil {
		return err
	}
	b.Config = cfg

	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	b.Client = betfair.NewClient(cfg)

	if cfg.Trading.Mode == infra.ModeLive {
		b.Placer = b.Client
		slog.Info("✅ LIVE execution: orders go to the exchange")
	} else {
		b.Placer = execution.NewPaperPlacer()
		slog.Info("✅ PAPER execution: orders fill instantly in memory")
	}

	if cfg.Audit.Enabled {
		audit, err := storage.NewAuditLog(cfg.Audit.Path)
		if err != nil {
			return err
		}
		b.Audit = audit
		slog.Info("✅ Audit journal opened", slog.String("path", cfg.Audit.Path))
	}

	var auditSink domain.AuditSink
	if b.Audit != nil {
		auditSink = b.Audit
	}

	creds := engine.Credentials{
		AppKey:  cfg.API.Betfair.AppKey,
		Session: b.Client.Session,
	}
	dial := func(ctx context.Context) (engine.MarketStream, error) {
		return betfair.DialStream(ctx, cfg.API.Betfair.StreamAddr)
	}
	b.Supervisor = engine.NewSupervisor(creds, dial, b.Placer, auditSink)
	b.Supervisor.SetHandshakeTimeout(time.Duration(cfg.Trading.HandshakeTimeoutSec) * time.Second)

	b.Markets = service.NewMarketService()
	b.Supervisor.OnPrice(b.Markets.Apply)

	b.Hub = server.NewHub(b.Markets.Updates())

	b.Server = server.NewServer(cfg.Server.Addr, server.Deps{
		Workers:   b.Supervisor,
		Exchange:  b.Client,
		Audit:     b.auditReader(),
		Snapshots: b.Markets,
		Hub:       b.Hub,
		Sim:       sim.NewSimulator(time.Now().UnixNano()).Handler(),
		Mode:      cfg.Trading.Mode,
		Defaults: server.Defaults{
			Size:            cfg.Trading.DefaultSize,
			UpThreshold:     cfg.Trading.DefaultUpThreshold,
			DownThreshold:   cfg.Trading.DefaultDownThreshold,
			PersistenceType: cfg.Trading.PersistenceType,
		},
	})

	b.Keeper = betfair.NewSessionKeeper(b.Client,
		time.Duration(cfg.API.Betfair.KeepAliveMin)*time.Minute)

	return nil
}

// auditReader adapts the optional journal to the server's interface
// without handing it a typed-nil pointer.
func (b *Bootstrap) auditReader() server.AuditReader {
	if b.Audit == nil {
		return nil
	}
	return b.Audit
}

// EstablishSession logs in with configured credentials when no session
// token is present. Paper mode runs fine without one.
func (b *Bootstrap) EstablishSession(ctx context.Context) {
	bf := b.Config.API.Betfair
	if b.Client.Session() != "" || bf.Username == "" {
		return
	}
	if _, err := b.Client.Login(ctx, bf.Username, bf.Password); err != nil {
		slog.Warn("initial login failed; use POST /api/session to retry",
			slog.Any("error", err))
	}
}
