package clients

import (
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func mongoConfigProvider() (*MongoConfig, error) {
	var config MongoConfig
	if err := envconfig.Process("gatehouse", &config); err != nil {
		return nil, err
	}
	return &config, nil
}

func mongoStoreProvider(config *MongoConfig, logger *zap.SugaredLogger) (StoreClient, error) {
	return NewMongoStoreClient(config, logger)
}

// MongoModule provides the mongo-backed store.
var MongoModule = fx.Options(
	fx.Provide(mongoConfigProvider),
	fx.Provide(mongoStoreProvider),
)

func sesNotifierConfigProvider() (*SesNotifierConfig, error) {
	var config SesNotifierConfig
	if err := envconfig.Process("ses", &config); err != nil {
		return nil, err
	}
	return &config, nil
}

func sesNotifierProvider(config *SesNotifierConfig, logger *zap.SugaredLogger) (Notifier, error) {
	return NewSesNotifier(config, logger)
}

// SesModule provides the SES-backed notifier.
var SesModule = fx.Options(
	fx.Provide(sesNotifierConfigProvider),
	fx.Provide(sesNotifierProvider),
)

func nullNotifierProvider(logger *zap.SugaredLogger) (Notifier, error) {
	return NewNullNotifier(logger), nil
}

// NullModule provides a notifier that only logs. Local development.
var NullModule = fx.Options(
	fx.Provide(nullNotifierProvider),
)
