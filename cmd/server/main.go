// Server runs the CIAM auth HTTP API. With DATABASE_URL set it migrates and
// uses Postgres; without it everything runs on in-memory stores (dev only).
package main

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/majafary/ciam-claude-sub001/internal/audit"
	auditrepo "github.com/majafary/ciam-claude-sub001/internal/audit/repository"
	"github.com/majafary/ciam-claude-sub001/internal/authcontext"
	authctxrepo "github.com/majafary/ciam-claude-sub001/internal/authcontext/repository"
	"github.com/majafary/ciam-claude-sub001/internal/config"
	"github.com/majafary/ciam-claude-sub001/internal/db"
	"github.com/majafary/ciam-claude-sub001/internal/db/migrate"
	"github.com/majafary/ciam-claude-sub001/internal/device"
	devicerepo "github.com/majafary/ciam-claude-sub001/internal/device/repository"
	"github.com/majafary/ciam-claude-sub001/internal/devotp"
	"github.com/majafary/ciam-claude-sub001/internal/esign"
	esignrepo "github.com/majafary/ciam-claude-sub001/internal/esign/repository"
	"github.com/majafary/ciam-claude-sub001/internal/event"
	"github.com/majafary/ciam-claude-sub001/internal/flow"
	"github.com/majafary/ciam-claude-sub001/internal/identity"
	identityrepo "github.com/majafary/ciam-claude-sub001/internal/identity/repository"
	"github.com/majafary/ciam-claude-sub001/internal/mfa/sms"
	"github.com/majafary/ciam-claude-sub001/internal/security"
	"github.com/majafary/ciam-claude-sub001/internal/server"
	sessionrepo "github.com/majafary/ciam-claude-sub001/internal/session/repository"
	"github.com/majafary/ciam-claude-sub001/internal/telemetry/otel"
	"github.com/majafary/ciam-claude-sub001/internal/token"
	tokenrepo "github.com/majafary/ciam-claude-sub001/internal/token/repository"
	"github.com/majafary/ciam-claude-sub001/internal/transaction"
	txnrepo "github.com/majafary/ciam-claude-sub001/internal/transaction/repository"
)

// repos bundles one implementation of every store.
type repos struct {
	users    identityrepo.Repository
	contexts authctxrepo.Repository
	txns     txnrepo.Repository
	sessions sessionrepo.Repository
	tokens   tokenrepo.Repository
	devices  devicerepo.Repository
	esignReq esignrepo.RequirementRepository
	esignAcc esignrepo.AcceptanceRepository
	audit    auditrepo.Repository
	uow      db.UnitOfWork
}

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	ctx := context.Background()
	providers, err := otel.NewProviders(ctx, cfg.OTLPEndpoint, "ciam-auth", cfg.OTLPInsecure)
	if err != nil {
		log.Fatal().Err(err).Msg("telemetry")
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = providers.Shutdown(shutdownCtx)
	}()

	r, err := buildRepos(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("storage")
	}

	provider, err := buildTokenProvider(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("jwt keys")
	}

	manager := token.NewManager(provider, r.tokens, r.sessions, r.uow, func(ctx context.Context, cupid string) (security.Profile, error) {
		u, err := r.users.GetByCupid(ctx, cupid)
		if err != nil || u == nil {
			return security.Profile{}, err
		}
		return security.Profile{GUID: u.GUID, Username: u.Username, Email: u.Email}, nil
	})

	kafkaEmitter, err := event.NewKafkaEmitter(cfg.SecurityKafkaBrokersList(), cfg.SecurityKafkaTopic, log)
	if err != nil {
		log.Fatal().Err(err).Msg("kafka")
	}
	defer kafkaEmitter.Close()
	var emitter event.Emitter = kafkaEmitter
	if kafkaEmitter == nil {
		// No brokers: events still reach the collector as log records.
		emitter = event.NewOTelEmitter(providers.LoggerProvider)
	}

	var sender flow.OTPSender
	if cfg.SMSLocalAPIKey != "" {
		sender = sms.NewSMSLocalClient(cfg.SMSLocalAPIKey, cfg.SMSLocalBaseURL, cfg.SMSLocalSender)
	}
	var devStore devotp.Store
	if cfg.OTPReturnToClient {
		devStore = devotp.NewMemoryStore()
	}

	svc := flow.NewService(flow.Deps{
		Gate:     identity.NewLocalGate(r.users, security.NewHasher(cfg.BcryptCost)),
		Users:    r.users,
		Contexts: authcontext.NewStore(r.contexts, cfg.FlowContextTTL()),
		Ledger: transaction.NewLedger(r.txns, transaction.TTLs{
			MFA:        cfg.MFATTL(),
			ESign:      cfg.ESignTTL(),
			DeviceBind: cfg.DeviceTTL(),
		}),
		Sessions: r.sessions,
		Tokens:   manager,
		Devices:  device.NewRegistry(r.devices, time.Duration(cfg.DeviceTrustTTLDays)*24*time.Hour),
		ESign:    esign.NewGate(r.esignReq, r.esignAcc),
		UoW:      r.uow,
		Sender:   sender,
		DevOTP:   devStore,
		Audit:    audit.NewLogger(r.audit, server.ClientIPFromContext, log),
		Emitter:  emitter,
		Log:      log,
	}, flow.Config{
		SessionTTL:        provider.RefreshTTL(),
		PushRetryInterval: cfg.PushRetryInterval(),
		OTPReturnToClient: cfg.OTPReturnToClient,
	})

	h := server.NewHandler(svc, devStore, server.HandlerConfig{
		CookieSecure:  cfg.Env == "production",
		DevOTPEnabled: cfg.OTPReturnToClient,
	}, log)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.NewRouter(h, log),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("serve")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
	// Give in-flight async security event emits time to land before the
	// emitter closes.
	if kafkaEmitter != nil {
		time.Sleep(event.ShutdownDrainDuration)
	}
	log.Info().Msg("stopped")
}

func buildRepos(cfg *config.Config, log zerolog.Logger) (*repos, error) {
	if cfg.DatabaseURL == "" {
		if cfg.Env == "production" {
			return nil, errors.New("DATABASE_URL is required in production")
		}
		log.Warn().Msg("DATABASE_URL not set; using in-memory stores")
		return &repos{
			users:    identityrepo.NewMemoryRepository(),
			contexts: authctxrepo.NewMemoryRepository(),
			txns:     txnrepo.NewMemoryRepository(),
			sessions: sessionrepo.NewMemoryRepository(),
			tokens:   tokenrepo.NewMemoryRepository(),
			devices:  devicerepo.NewMemoryRepository(),
			esignReq: esignrepo.NewMemoryRequirementRepository(),
			esignAcc: esignrepo.NewMemoryAcceptanceRepository(),
			audit:    auditrepo.NewMemoryRepository(),
			uow:      db.NewMemoryUnitOfWork(),
		}, nil
	}

	if err := migrate.Run(cfg.DatabaseURL, "up"); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return nil, err
	}
	pool, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	return &repos{
		users:    identityrepo.NewPostgresRepository(pool),
		contexts: authctxrepo.NewPostgresRepository(pool),
		txns:     txnrepo.NewPostgresRepository(pool),
		sessions: sessionrepo.NewPostgresRepository(pool),
		tokens:   tokenrepo.NewPostgresRepository(pool),
		devices:  devicerepo.NewPostgresRepository(pool),
		esignReq: esignrepo.NewPostgresRequirementRepository(pool),
		esignAcc: esignrepo.NewPostgresAcceptanceRepository(pool),
		audit:    auditrepo.NewPostgresRepository(pool),
		uow:      db.NewSQLUnitOfWork(pool),
	}, nil
}

// buildTokenProvider loads the configured signing key pair, or generates an
// ephemeral RSA pair outside production so the server starts with zero config.
// Ephemeral keys invalidate all tokens on restart.
func buildTokenProvider(cfg *config.Config) (*security.TokenProvider, error) {
	if cfg.JWTPrivateKey != "" && cfg.JWTPublicKey != "" {
		signer, err := security.ParsePrivateKey(cfg.JWTPrivateKey)
		if err != nil {
			return nil, err
		}
		pub, err := security.ParsePublicKey(cfg.JWTPublicKey)
		if err != nil {
			return nil, err
		}
		return security.NewTokenProvider(signer, pub, cfg.JWTIssuer, cfg.JWTAudience,
			cfg.AccessTTL(), cfg.RefreshTTL(), cfg.IDTTL()), nil
	}
	if cfg.Env == "production" {
		return nil, errors.New("JWT_PRIVATE_KEY and JWT_PUBLIC_KEY are required in production")
	}
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	var pub crypto.PublicKey = &key.PublicKey
	return security.NewTokenProvider(key, pub, cfg.JWTIssuer, cfg.JWTAudience,
		cfg.AccessTTL(), cfg.RefreshTTL(), cfg.IDTTL()), nil
}
