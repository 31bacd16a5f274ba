package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/kelseyhightower/envconfig"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/gatehouse-api/gatehouse/api"
	"github.com/gatehouse-api/gatehouse/audit"
	sc "github.com/gatehouse-api/gatehouse/clients"
	"github.com/gatehouse-api/gatehouse/invites"
)

var defaultStopTimeout = 60 * time.Second

type (
	//InboundConfig describes how to receive inbound communication
	InboundConfig struct {
		Protocol      string `default:"http"`
		SslKeyFile    string `split_words:"true" default:""`
		SslCertFile   string `split_words:"true" default:""`
		ListenAddress string `split_words:"true" required:"true"`
	}

	// EngineConfig carries the invite lifecycle knobs.
	EngineConfig struct {
		ReminderCap          int           `split_words:"true" default:"3"`
		InviteTtl            time.Duration `split_words:"true" default:"168h"`
		WebUrl               string        `split_words:"true" required:"true"`
		ChannelPolicy        string        `split_words:"true" default:"mirror-original"`
		ResendAlertThreshold int64         `split_words:"true" default:"30"`
		ResendAlertWindow    time.Duration `split_words:"true" default:"1h"`
		SessionSecret        string        `split_words:"true" required:"true"`
		SessionTtl           time.Duration `split_words:"true" default:"24h"`
		ExpirySweepInterval  time.Duration `split_words:"true" default:"15m"`
	}
)

func serviceConfigProvider() (InboundConfig, error) {
	var config InboundConfig
	err := envconfig.Process("service", &config)
	if err != nil {
		return InboundConfig{}, err
	}
	return config, nil
}

func engineConfigProvider() (EngineConfig, error) {
	var config EngineConfig
	err := envconfig.Process("gatehouse", &config)
	if err != nil {
		return EngineConfig{}, err
	}
	return config, nil
}

func recorderProvider(logger *zap.SugaredLogger) *audit.Recorder {
	return audit.NewRecorder(logger)
}

func engineProvider(store sc.StoreClient, notifier sc.Notifier, recorder *audit.Recorder, config EngineConfig, logger *zap.SugaredLogger) *invites.Engine {
	return invites.NewEngine(store, notifier, recorder, invites.Config{
		ReminderCap:          config.ReminderCap,
		InviteTTL:            config.InviteTtl,
		WebURL:               config.WebUrl,
		ChannelPolicy:        config.ChannelPolicy,
		ResendAlertThreshold: config.ResendAlertThreshold,
		ResendAlertWindow:    config.ResendAlertWindow,
		SessionSecret:        config.SessionSecret,
		SessionTTL:           config.SessionTtl,
	}, logger)
}

func expirerProvider(store sc.StoreClient, config EngineConfig, logger *zap.SugaredLogger) *invites.Expirer {
	return invites.NewExpirer(store, logger, config.ExpirySweepInterval)
}

func serverProvider(config InboundConfig, rtr *mux.Router) *http.Server {
	return &http.Server{
		Addr:    config.ListenAddress,
		Handler: rtr,
	}
}

func loggerProvider() (*zap.SugaredLogger, error) {
	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	config.EncoderConfig.FunctionKey = "function"
	logger, err := config.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

// notifierModule picks the delivery backend. SES in deployed environments,
// the logging notifier everywhere else.
func notifierModule() fx.Option {
	if os.Getenv("GATEHOUSE_NOTIFIER") == "ses" {
		return sc.SesModule
	}
	return sc.NullModule
}

// InvocationParams are the parameters need to kick off a service
type InvocationParams struct {
	fx.In
	Lifecycle  fx.Lifecycle
	Shutdowner fx.Shutdowner
	Config     InboundConfig
	Server     *http.Server
	Expirer    *invites.Expirer
}

func startServer(p InvocationParams) {
	p.Lifecycle.Append(
		fx.Hook{
			OnStart: func(ctx context.Context) error {
				go func() {
					if err := p.Server.ListenAndServe(); err != nil {
						log.Printf("Server error: %v", err)
						log.Printf("Shutting down the service")
						if shutdownErr := p.Shutdowner.Shutdown(); shutdownErr != nil {
							log.Printf("Failed to shutdown: %v", shutdownErr)
						}
					}
				}()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return p.Server.Shutdown(ctx)
			},
		},
	)
}

func startExpirer(p InvocationParams) {
	p.Lifecycle.Append(
		fx.Hook{
			OnStart: func(ctx context.Context) error {
				p.Expirer.Start()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				p.Expirer.Stop()
				return nil
			},
		},
	)
}

func startMetrics(lc fx.Lifecycle, logger *zap.SugaredLogger) {
	var shutdown func(context.Context) error
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			var err error
			shutdown, err = audit.SetupMetrics(ctx, "gatehouse")
			if err != nil {
				logger.With(zap.Error(err)).Warn("metrics exporter disabled")
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if shutdown == nil {
				return nil
			}
			return shutdown(ctx)
		},
	})
}

func main() {
	fx.New(
		notifierModule(),
		sc.MongoModule,
		api.RouterModule,
		fx.Provide(
			serviceConfigProvider,
			engineConfigProvider,
			recorderProvider,
			engineProvider,
			expirerProvider,
			serverProvider,
			loggerProvider,
			api.NewApi,
		),
		fx.Invoke(startMetrics),
		fx.Invoke(startExpirer),
		fx.Invoke(startServer),
		fx.StopTimeout(defaultStopTimeout),
	).Run()
}
