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

	"authcore/internal/audit"
	auditrepo "authcore/internal/audit/repository"
	"authcore/internal/config"
	"authcore/internal/db"
	"authcore/internal/db/migrate"
	"authcore/internal/devotp"
	healthhandler "authcore/internal/health/handler"
	identityhandler "authcore/internal/identity/handler"
	identityrepo "authcore/internal/identity/repository"
	identityservice "authcore/internal/identity/service"
	ledgerrepo "authcore/internal/ledger/repository"
	"authcore/internal/ledger/sweeper"
	"authcore/internal/logging"
	"authcore/internal/notify"
	"authcore/internal/notify/sms"
	"authcore/internal/policy/engine"
	"authcore/internal/ratelimit"
	"authcore/internal/security"
	"authcore/internal/server"
	"authcore/internal/server/middleware"
	"authcore/internal/telemetry"
	telemetryotel "authcore/internal/telemetry/otel"
	"authcore/internal/telemetry/producer"
	userrepo "authcore/internal/user/repository"
)

const (
	shutdownTimeout = 15 * time.Second
	redisKeyPrefix  = "authcore:"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logCloser, err := logging.Setup(cfg.LogFile, cfg.LogMaxBytes)
	if err != nil {
		log.Fatalf("log setup: %v", err)
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Options{
		Endpoint:    cfg.OTELEndpoint,
		ServiceName: cfg.OTELServiceName,
		Insecure:    cfg.OTELInsecure,
	})
	if err != nil {
		log.Fatalf("otel: %v", err)
	}
	providers.SetGlobal()

	conn, err := db.Connect(cfg.StorageDriver, cfg.DatabaseURL, cfg.SQLitePath)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer conn.Close()
	if err := migrate.Run(conn.MigrateURL, "up"); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	log.Printf("database: %s ready", conn.Dialect)

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("redis: %v", err)
		}
	}

	tokens, err := newTokenIssuer(cfg)
	if err != nil {
		log.Fatalf("jwt: %v", err)
	}

	policy, err := engine.NewOPAEvaluatorFromFile(ctx, cfg.MFAPolicyFile)
	if err != nil {
		log.Fatalf("policy: %v", err)
	}

	dispatcher := newDispatcher(cfg)
	dispatcher.Start()

	kafkaProducer := producer.NewKafkaProducer(cfg.TelemetryKafkaBrokersList(), cfg.TelemetryKafkaTopic)
	// A nil *KafkaProducer must not end up inside the interface.
	var kafkaEmitter telemetry.EventEmitter
	if kafkaProducer != nil {
		kafkaEmitter = kafkaProducer
		log.Printf("telemetry: publishing to kafka topic %s", cfg.TelemetryKafkaTopic)
	}
	var otelEmitter telemetry.EventEmitter
	if cfg.OTELEndpoint != "" {
		otelEmitter = telemetryotel.NewEventEmitter(providers.LoggerProvider)
	}
	emitter := telemetry.Fanout(otelEmitter, kafkaEmitter)

	var ledger interface {
		identityservice.LedgerRepo
		sweeper.Purger
	}
	if cfg.LedgerBackend == "redis" {
		ledger = ledgerrepo.NewRedisRepository(rdb, redisKeyPrefix)
	} else {
		ledger = ledgerrepo.NewSQLRepository(conn.DB, conn.Dialect)
	}

	audits := auditrepo.NewSQLRepository(conn.DB, conn.Dialect)
	auditLogger := audit.NewLogger(audits, middleware.ClientIPFromContext)

	deps := identityservice.Deps{
		Users:     userrepo.NewSQLRepository(conn.DB, conn.Dialect),
		Ledger:    ledger,
		Hasher:    security.NewHasher(cfg.BcryptCost),
		Tokens:    tokens,
		Notifier:  dispatcher,
		Policy:    policy,
		Audit:     auditLogger,
		Activity:  audits,
		Telemetry: emitter,
		ClientIP:  middleware.ClientIPFromContext,
	}
	if cfg.LedgerBackend != "redis" {
		deps.Resets = identityrepo.NewSQLPasswordResets(conn.DB, conn.Dialect)
	}
	if rdb != nil {
		deps.Limiter = ratelimit.NewLimiter(rdb, redisKeyPrefix)
	} else {
		log.Println("ratelimit: REDIS_URL not set; attempt throttling is off")
	}
	var devStore devotp.Store
	if cfg.OTPReturnToClient {
		devStore = devotp.NewMemoryStore()
		deps.DevOTP = devStore
		log.Println("WARNING: dev OTP endpoint enabled; never run this in production")
	}

	authSvc, err := identityservice.NewAuthService(deps, identityservice.Options{
		OTPTTL:        cfg.OTPTTL(),
		ResetTokenTTL: cfg.ResetTokenTTL(),
		OTPChannel:    notify.Channel(cfg.OTPChannel),
		FrontendURL:   cfg.FrontendURL,
	})
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	health := healthhandler.NewServer(conn.DB, policy)
	httpSrv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: server.NewRouter(server.Deps{
			Auth:           identityhandler.NewAuthHandler(authSvc),
			Tokens:         tokens,
			Health:         health,
			Audit:          auditLogger,
			Telemetry:      emitter,
			DevOTP:         devStore,
			TrustedProxies: middleware.ParseProxyCIDRs(cfg.TrustedProxiesList()),
			CORSOrigins:    cfg.CORSOriginsList(),
			RequestTimeout: cfg.RequestTimeout(),
		}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	lis, err := net.Listen("tcp", cfg.GRPCHealthAddr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	grpcSrv := server.NewGRPCServer(health)

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	sweepDone := sweeper.New(ledger, cfg.SweepInterval()).Start(sweepCtx)

	errCh := make(chan error, 2)
	go func() {
		log.Printf("gRPC health server listening on %s", cfg.GRPCHealthAddr)
		if err := grpcSrv.Serve(lis); err != nil {
			errCh <- err
		}
	}()
	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Println("shutting down...")
	case err := <-errCh:
		log.Printf("server error: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	grpcSrv.GracefulStop()
	stopSweep()
	<-sweepDone
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		log.Printf("notify: shutdown: %v", err)
	}
	// Give in-flight async telemetry emits time to finish before closing exporters.
	if emitter != nil {
		time.Sleep(telemetry.ShutdownDrainDuration)
	}
	if kafkaProducer != nil {
		if err := kafkaProducer.Close(); err != nil {
			log.Printf("kafka: close: %v", err)
		}
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Printf("otel: shutdown: %v", err)
	}
	log.Println("server stopped")
}

func newTokenIssuer(cfg *config.Config) (*security.TokenIssuer, error) {
	accessKey, err := security.LoadSigningKey(cfg.JWTAccessSecret)
	if err != nil {
		return nil, err
	}
	refreshKey, err := security.LoadSigningKey(cfg.JWTRefreshSecret)
	if err != nil {
		return nil, err
	}
	return security.NewTokenIssuer(accessKey, refreshKey, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL(), cfg.RefreshTTL())
}

// newDispatcher registers the configured gateways. Channels without one fall back to the log.
func newDispatcher(cfg *config.Config) *notify.Dispatcher {
	d := notify.NewDispatcher(cfg.NotifyWorkers, cfg.NotifyQueueSize, cfg.NotifySendTimeout(), nil)
	smtpCfg := notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		Secure:   cfg.SMTPSecure,
	}
	if smtpCfg.Enabled() {
		d.Register(notify.ChannelEmail, notify.NewSMTPSender(smtpCfg))
	} else {
		log.Println("notify: SMTP not configured; emails go to the log")
	}
	switch {
	case cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "":
		d.Register(notify.ChannelSMS, sms.NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber))
	case cfg.SMSLocalAPIKey != "":
		d.Register(notify.ChannelSMS, sms.NewSMSLocalClient(cfg.SMSLocalAPIKey, cfg.SMSLocalBaseURL, cfg.SMSLocalSender))
	}
	return d
}
