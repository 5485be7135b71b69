package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/yeab-games/game_zone/internal/config"
	"github.com/yeab-games/game_zone/internal/events"
	"github.com/yeab-games/game_zone/internal/funding"
	"github.com/yeab-games/game_zone/internal/game"
	"github.com/yeab-games/game_zone/internal/identity"
	"github.com/yeab-games/game_zone/internal/ledger"
	"github.com/yeab-games/game_zone/internal/lobby"
	"github.com/yeab-games/game_zone/internal/middleware"
	"github.com/yeab-games/game_zone/internal/notification"
	"github.com/yeab-games/game_zone/internal/session"
	"github.com/yeab-games/game_zone/internal/settlement"
	"github.com/yeab-games/game_zone/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg       config.Config
	DB        *pgxpool.Pool
	Cache     *redis.Client
	Publisher events.Publisher
	Logger    *slog.Logger
}

// Setup configures middlewares and all application routes. It returns the
// game engine so main can drive the timeout sweeper.
func Setup(app *fiber.App, d Deps) (*game.Engine, error) {
	// Enforce DB/Redis presence outside of dev, even though main also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return nil, fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return nil, fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	// Stores: Postgres and Redis when configured, in-memory in dev.
	var store ledger.Store
	var sessions game.Repository
	var identityRepo identity.Repository
	if d.DB != nil {
		store = ledger.NewPostgresStore(d.DB)
		sessions = game.NewPostgresRepository(d.DB)
		identityRepo = identity.NewPostgresRepository(d.DB)
	} else {
		store = ledger.NewInMemory()
		sessions = game.NewMemoryRepository()
		identityRepo = identity.NewMemoryRepository()
	}
	var registry session.Registry
	var codes identity.CodeStore
	if d.Cache != nil {
		registry = session.NewRedisRegistry(d.Cache)
		codes = identity.NewRedisCodeStore(d.Cache)
	} else {
		registry = session.NewMemoryRegistry()
		codes = identity.NewMemoryCodeStore()
	}

	notifier := notification.NewLoggerNotifier(d.Logger)

	walletSvc := wallet.NewService(store, notifier, d.Publisher)
	identitySvc := identity.NewService(identityRepo, codes, identity.NewLoggerSender(d.Logger), d.Cfg.OTPTTL, d.Logger)
	fundingSvc, err := funding.NewService(walletSvc, identitySvc, nil, notifier, d.Logger)
	if err != nil {
		return nil, err
	}

	rules := game.NewTokenRace()
	coordinator := settlement.NewCoordinator(sessions, walletSvc, registry, d.Publisher, notifier, d.Logger)
	engine := game.NewEngine(sessions, rules, coordinator, d.Cfg.TurnTimeout, d.Logger)
	lobbySvc := lobby.NewService(sessions, registry, walletSvc, identitySvc, rules, d.Cfg, notifier, d.Logger)

	identityHandler := identity.NewHandler(identitySvc)
	walletHandler := wallet.NewHandler(walletSvc)
	fundingHandler := funding.NewHandler(fundingSvc)
	lobbyHandler := lobby.NewHandler(lobbySvc)
	gameHandler := game.NewHandler(engine)

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	// The provider webhook is registered ahead of the idempotency middleware:
	// callbacks carry no Idempotency-Key, and the ledger already dedupes them
	// by provider reference.
	app.Post("/api/v1/funding/callback", fundingHandler.Callback)

	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	otpLimiter := middleware.OTPRateLimit(d.Cache, 3)
	RegisterIdentityRoutes(api, identityHandler, otpLimiter)
	RegisterWalletRoutes(api, walletHandler)
	RegisterFundingRoutes(api, fundingHandler)
	RegisterLobbyRoutes(api, lobbyHandler)
	RegisterGameRoutes(api, gameHandler)

	return engine, nil
}
