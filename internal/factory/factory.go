// Package factory wires clients, stores, workflow handlers and the
// command bus together and owns their lifecycle.
package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"golang.org/x/sync/errgroup"

	"otp-auth-service/internal/bucketing"
	"otp-auth-service/internal/client"
	"otp-auth-service/internal/command"
	"otp-auth-service/internal/config"
	"otp-auth-service/internal/encryption"
	"otp-auth-service/internal/handler"
	"otp-auth-service/internal/hashing"
	"otp-auth-service/internal/identifier"
	"otp-auth-service/internal/models"
	"otp-auth-service/internal/notifier"
	redisrepo "otp-auth-service/internal/repository/redis"
	"otp-auth-service/internal/repository/scylla"
	"otp-auth-service/internal/service"
	"otp-auth-service/internal/tls"
	"otp-auth-service/internal/util"
)

const sessionCleanupInterval = time.Hour

// Factory manages the lifecycle of all application dependencies.
type Factory struct {
	config     *config.Config
	tlsManager *tls.TLSManager

	redisClient   *client.RedisClient
	scyllaClient  *scylla.ScyllaClient
	kafkaProducer *client.KafkaProducer

	hasher            *hashing.Hasher
	encryptionManager *encryption.EncryptionManager
	bucketingManager  *bucketing.BucketingManager

	userStore    *scylla.UserStore
	otpStore     *redisrepo.OTPStore
	sessionStore *redisrepo.SessionStore

	bus *command.Bus

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory loads configuration, initializes every dependency and
// registers the workflow handlers on the bus.
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	f := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if cfg.Server.EnableTLS {
		f.tlsManager = tls.NewTLSManager(&tls.TLSConfig{
			CertFile:    cfg.Server.CertFile,
			KeyFile:     cfg.Server.KeyFile,
			CertDir:     cfg.Server.CertDir,
			Environment: cfg.Environment,
		})
	}

	if err := f.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	f.initializeManagers()
	f.initializeStores()

	if err := f.initializeBus(); err != nil {
		return nil, fmt.Errorf("failed to initialize command bus: %w", err)
	}

	go f.runSessionCleanup()

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.Bool("kms_enabled", cfg.KMS.Enabled),
		util.String("otp_notifier", cfg.OTP.Notifier),
	)

	return f, nil
}

func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	redisClient, err := client.NewRedisClient(f.config, util.Get())
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	f.redisClient = redisClient
	if err := f.redisClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("redis health check: %w", err)
	}
	util.Info("Redis client initialized and healthy")

	scyllaClient, err := scylla.NewScyllaClient(f.config, util.Get())
	if err != nil {
		return fmt.Errorf("scylla: %w", err)
	}
	f.scyllaClient = scyllaClient
	if err := f.scyllaClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("scylla health check: %w", err)
	}
	util.Info("ScyllaDB client initialized and healthy")

	// Kafka is required only when it carries OTP delivery.
	producer, err := client.NewKafkaProducer(f.config, util.Get())
	if err != nil {
		if f.config.OTP.Notifier == "kafka" {
			return fmt.Errorf("kafka: %w", err)
		}
		util.Warn("Kafka producer initialization failed, proceeding without Kafka", util.ErrorField(err))
	} else {
		f.kafkaProducer = producer
		util.Info("Kafka producer initialized")
	}

	return nil
}

func (f *Factory) initializeManagers() {
	f.hasher = hashing.NewHasher(f.config)

	var kmsClient *kms.Client
	if f.config.KMS.Enabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(f.config.KMS.Region))
		if err != nil {
			util.Warn("Failed to load AWS config, encryption falls back to local keys", util.ErrorField(err))
		} else {
			kmsClient = kms.NewFromConfig(awsCfg)
		}
	}

	f.encryptionManager = encryption.NewEncryptionManager(f.config, kmsClient)
	f.bucketingManager = bucketing.NewBucketingManager(f.config)

	if f.config.IsProduction() {
		f.hasher.StartPepperRotation()
	}
}

func (f *Factory) initializeStores() {
	f.userStore = scylla.NewUserStore(f.scyllaClient, f.encryptionManager, f.bucketingManager, util.Get())
	f.otpStore = redisrepo.NewOTPStore(f.redisClient, f.hasher)
	f.sessionStore = redisrepo.NewSessionStore(f.redisClient)
}

func (f *Factory) initializeBus() error {
	var otpNotifier service.Notifier
	switch f.config.OTP.Notifier {
	case "kafka":
		n, err := notifier.NewKafkaNotifier(f.kafkaProducer, f.config.Kafka.OTPTopic, util.Get())
		if err != nil {
			return fmt.Errorf("kafka notifier: %w", err)
		}
		otpNotifier = n
	default:
		n, err := notifier.NewSMTPNotifier(f.config.SMTP, util.Get())
		if err != nil {
			return fmt.Errorf("smtp notifier: %w", err)
		}
		otpNotifier = n
	}

	ids := identifier.NewCryptoProvider()

	loginHandler, err := service.NewLoginHandler(f.userStore, f.otpStore, ids, otpNotifier, f.config.OTP, util.Get())
	if err != nil {
		return fmt.Errorf("login handler: %w", err)
	}
	sessionHandler, err := service.NewSessionHandler(f.sessionStore, ids, f.config.Session, util.Get())
	if err != nil {
		return fmt.Errorf("session handler: %w", err)
	}

	f.bus = command.New()
	command.Register[service.LoginUserCommand, service.LoginResult](f.bus, loginHandler)
	command.Register[service.IssueSessionCommand, *models.Session](f.bus, sessionHandler)

	return nil
}

// runSessionCleanup periodically prunes dead tokens from the per-user
// session sets until the factory closes.
func (f *Factory) runSessionCleanup() {
	ticker := time.NewTicker(sessionCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			if err := f.sessionStore.Cleanup(ctx); err != nil {
				util.Warn("Session cleanup failed", util.ErrorField(err))
			}
			cancel()
		case <-f.closed:
			return
		}
	}
}

// AuthHandler builds the HTTP handler on top of the bus.
func (f *Factory) AuthHandler() *handler.AuthHandler {
	return handler.NewAuthHandler(f.bus, f.sessionStore, f.config, util.Get())
}

// HealthCheck probes every backing service concurrently and returns a
// map of component name to failure, empty when everything is healthy.
func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	var mu sync.Mutex
	healthErrors := make(map[string]error)
	record := func(name string, err error) {
		if err != nil {
			mu.Lock()
			healthErrors[name] = err
			mu.Unlock()
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		record("redis", f.redisClient.HealthCheck(ctx))
		return nil
	})
	g.Go(func() error {
		record("scylla", f.scyllaClient.HealthCheck(ctx))
		return nil
	})
	if f.kafkaProducer != nil {
		g.Go(func() error {
			record("kafka", f.kafkaProducer.HealthCheck(ctx))
			return nil
		})
	}
	_ = g.Wait()

	return healthErrors
}

func (f *Factory) IsHealthy(ctx context.Context) bool {
	healthErrors := f.HealthCheck(ctx)
	// Kafka is advisory unless it carries OTP delivery.
	if f.config.OTP.Notifier != "kafka" {
		delete(healthErrors, "kafka")
	}
	return len(healthErrors) == 0
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			} else {
				util.Info("Kafka producer closed")
			}
		}

		if f.scyllaClient != nil {
			f.scyllaClient.Close()
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			} else {
				util.Info("Redis client closed")
			}
		}

		if f.encryptionManager != nil {
			f.encryptionManager.ClearCache()
		}

		util.Info("Factory shutdown completed")
		util.Sync()
	})

	return nil
}

func (f *Factory) WaitForClose() {
	<-f.closed
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) TLSManager() *tls.TLSManager {
	return f.tlsManager
}

func (f *Factory) Bus() *command.Bus {
	return f.bus
}

func (f *Factory) SessionStore() *redisrepo.SessionStore {
	return f.sessionStore
}

func (f *Factory) UserStore() *scylla.UserStore {
	return f.userStore
}
