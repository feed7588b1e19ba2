package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	authv1 "didlink/api/auth/v1"
	"didlink/internal/attempt"
	attemptrepo "didlink/internal/attempt/repository"
	authhandler "didlink/internal/auth/handler"
	"didlink/internal/config"
	"didlink/internal/credential"
	"didlink/internal/db"
	devicerepo "didlink/internal/device/repository"
	healthhandler "didlink/internal/health/handler"
	"didlink/internal/ledger"
	methodrepo "didlink/internal/method/repository"
	methodservice "didlink/internal/method/service"
	"didlink/internal/oauthstate"
	"didlink/internal/policy/engine"
	policyrepo "didlink/internal/policy/repository"
	"didlink/internal/proof"
	recoveryrepo "didlink/internal/recovery/repository"
	"didlink/internal/secrets"
	"didlink/internal/server"
	"didlink/internal/server/interceptors"
	"didlink/internal/session"
	sessionrepo "didlink/internal/session/repository"
	sessionservice "didlink/internal/session/service"
	"didlink/internal/telemetry"
	otelsetup "didlink/internal/telemetry/otel"
	"didlink/internal/telemetry/producer"
	"didlink/internal/vault"
)

const (
	serviceName        = "didlink-auth"
	healthInterval     = 10 * time.Second
	httpShutdownBudget = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.ValidateServer(); err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := otelsetup.NewProviders(ctx, cfg.OTLPEndpoint, serviceName, cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("otel: %v", err)
	}
	providers.SetGlobal()
	events := telemetry.Fanout{otelsetup.NewEventEmitter(providers.LoggerProvider)}
	var kafkaProducer *producer.KafkaProducer
	if brokers := cfg.KafkaBrokersList(); len(brokers) > 0 {
		kafkaProducer = producer.NewKafkaProducer(brokers, cfg.AuthEventsTopic)
		events = append(events, kafkaProducer)
		log.Printf("auth events: kafka topic %s", cfg.AuthEventsTopic)
	}

	masterKey, err := loadMasterKey(ctx, cfg)
	if err != nil {
		log.Fatalf("vault: %v", err)
	}
	v, err := vault.New(masterKey)
	if err != nil {
		log.Fatalf("vault: %v", err)
	}

	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer database.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	states, err := oauthstate.NewManager([]byte(cfg.StateSecret), oauthstate.NewRedisNonceStore(rdb), nil)
	if err != nil {
		log.Fatalf("oauth state: %v", err)
	}

	methods := methodrepo.NewPostgresRepository(database)
	recoveryCodes := recoveryrepo.NewPostgresRepository(database)
	verifiers, err := buildVerifiers(cfg, methods, recoveryCodes, states)
	if err != nil {
		log.Fatalf("credentials: %v", err)
	}

	ledgerClient := ledger.NewHTTPClient(cfg.LedgerURL, cfg.LedgerAPIKey, cfg.LedgerCallTimeout())
	proofs := proof.NewVerifier(ledgerClient, cfg.ProofAudience, nil)

	policy := attempt.DefaultPolicy()
	policy.Window = cfg.RateLimitWindow()
	policy.Limits[attemptrepo.BucketTOTP] = cfg.RateLimitTOTP
	policy.Limits[attemptrepo.BucketOAuth] = cfg.RateLimitOAuth
	policy.Limits[attemptrepo.BucketSessionCreate] = cfg.RateLimitSession
	attempts := attempt.NewTracker(attemptrepo.NewPostgresRepository(database), policy, interceptors.ClientIPFromContext)

	registry := methodservice.NewRegistry(methodservice.Deps{
		Methods:   methods,
		Recovery:  recoveryCodes,
		Vault:     v,
		Proofs:    proofs,
		Ledger:    ledgerClient,
		Verifiers: verifiers,
		Attempts:  attempts,
		Events:    events,
	})

	signer, err := session.NewSigner([]byte(cfg.SessionSecret))
	if err != nil {
		log.Fatalf("session: %v", err)
	}
	evaluator := engine.NewOPAEvaluator(policyrepo.NewPostgresRepository(database))
	sessions := sessionservice.NewService(sessionservice.Deps{
		Sessions:    sessionrepo.NewPostgresRepository(database),
		Devices:     devicerepo.NewPostgresRepository(database),
		Methods:     registry,
		Identities:  ledgerClient,
		Proofs:      proofs,
		Attempts:    attempts,
		Permissions: evaluator,
		Signer:      signer,
		Lifetimes: sessionservice.Lifetimes{
			TOTP:        cfg.TOTPSessionTTL(),
			OAuth:       cfg.OAuthSessionTTL(),
			DeviceTrust: cfg.DeviceTrustTTL(),
		},
		Events: events,
	})

	health := healthhandler.NewServer(database, evaluator, []string{authv1.AuthService_ServiceName},
		healthhandler.Check{Name: "redis", Fn: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }})
	go health.Run(ctx, healthInterval)

	grpcServer := server.NewGRPCServer(server.Deps{
		Auth:   authhandler.NewServer(registry, sessions),
		Health: health,
		Events: events,
	})
	httpServer := server.NewHTTPServer(cfg.HTTPAddr, authhandler.NewRouter(authhandler.HTTPDeps{
		Methods:   registry,
		Sessions:  sessions,
		States:    states,
		Providers: verifiers,
		Livez:     health.Livez,
		Readyz:    health.Readyz,
	}))

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	go func() {
		log.Printf("gRPC server listening on %s", cfg.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatalf("serve: %v", err)
		}
	}()
	go func() {
		log.Printf("HTTP server listening on %s (oauth providers: %v)", cfg.HTTPAddr, verifiers.Providers())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down...")
	health.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownBudget)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	grpcServer.GracefulStop()

	time.Sleep(telemetry.ShutdownDrainDuration)
	if kafkaProducer != nil {
		if err := kafkaProducer.Close(); err != nil {
			log.Printf("kafka producer close: %v", err)
		}
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Printf("otel shutdown: %v", err)
	}
	log.Println("stopped")
}

// loadMasterKey reads the vault key from AWS Secrets Manager when VAULT_MASTER_KEY_SECRET_ID is set,
// otherwise from VAULT_MASTER_KEY.
func loadMasterKey(ctx context.Context, cfg *config.Config) ([]byte, error) {
	if cfg.VaultMasterKeySecretID == "" {
		return secrets.DecodeKey(cfg.VaultMasterKey)
	}
	client, err := secrets.NewClient(ctx, cfg.AWSRegion)
	if err != nil {
		return nil, err
	}
	return secrets.FetchMasterKey(ctx, client, cfg.VaultMasterKeySecretID)
}

func buildVerifiers(cfg *config.Config, methods *methodrepo.PostgresRepository, codes *recoveryrepo.PostgresRepository, states *oauthstate.Manager) (*credential.Registry, error) {
	totp := credential.NewTOTPStrategy(cfg.TOTPIssuer, methods, codes)
	if cfg.OAuthProvidersFile == "" {
		return credential.NewRegistry(totp), nil
	}
	catalog, err := credential.LoadProviders(cfg.OAuthProvidersFile)
	if err != nil {
		return nil, err
	}
	oauth := make([]*credential.OAuthStrategy, len(catalog))
	for i, p := range catalog {
		oauth[i] = credential.NewOAuthStrategy(p, states, cfg.OAuthCallTimeout())
	}
	return credential.NewRegistry(totp, oauth...), nil
}
