package main

import (
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/layer-3/clearview/adapters/clearnode"
	"github.com/layer-3/clearview/adapters/events"
	"github.com/layer-3/clearview/adapters/keystore"
	"github.com/layer-3/clearview/adapters/tokenizer"
	"github.com/layer-3/clearview/adapters/wallet"
	"github.com/layer-3/clearview/config"
	"github.com/layer-3/clearview/ports"
	"github.com/layer-3/clearview/service"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type app struct {
	log     *logrus.Logger
	auth    *service.Authenticator
	agg     *service.Aggregator
	closers []func() error
}

func newApp(cfg *config.Config) (*app, error) {
	log, err := cfg.NewLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to configure logging: %w", err)
	}
	a := &app{log: log}

	var keys ports.KeyStore = keystore.NewMemoryStore()
	var publisher ports.EventPublisher
	dialerOpts := []clearnode.DialerOption{
		clearnode.WithLogger(log),
		clearnode.WithPollInterval(cfg.PollInterval),
	}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		redisClient := redis.NewClient(opts)
		a.closers = append(a.closers, redisClient.Close)

		keys = keystore.NewRedisStore(redisClient, cfg.SessionKeyTTL)

		wmLogger := watermill.NewStdLogger(false, false)
		pub, err := redisstream.NewPublisher(redisstream.PublisherConfig{Client: redisClient}, wmLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create Redis publisher: %w", err)
		}
		a.closers = append(a.closers, pub.Close)

		sub, err := redisstream.NewSubscriber(redisstream.SubscriberConfig{Client: redisClient}, wmLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create Redis subscriber: %w", err)
		}
		a.closers = append(a.closers, sub.Close)

		publisher = events.NewWatermillPublisher(pub, cfg.EventTopic)
		dialerOpts = append(dialerOpts, clearnode.WithBalanceFeed(events.NewBalanceFeed(sub, cfg.BalanceTopic, log)))
	} else {
		log.Warn("no Redis configured, session keys will not survive a restart")
	}

	if cfg.ClearNodePublicKeyFile != "" {
		key, err := tokenizer.LoadPublicKey(cfg.ClearNodePublicKeyFile)
		if err != nil {
			return nil, err
		}
		dialerOpts = append(dialerOpts, clearnode.WithParser(tokenizer.NewParser(key)))
	}

	var w ports.Wallet
	if cfg.WalletKey != "" {
		lw, err := wallet.NewLocalWallet(cfg.WalletKey)
		if err != nil {
			return nil, err
		}
		w = lw
	}

	authOpts := []service.Option{
		service.WithLogger(log),
		service.WithStepTimeout(cfg.StepTimeout),
	}
	if publisher != nil {
		authOpts = append(authOpts, service.WithEventPublisher(publisher))
	}

	a.auth = service.NewAuthenticator(w, clearnode.NewDialer(cfg.ClearNodeURL, dialerOpts...), keys, authOpts...)
	a.agg = service.NewAggregator(a.auth, log)
	return a, nil
}

// close releases infrastructure in reverse order of creation
func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// shutdown closes the app and logs what failed to close
func (a *app) shutdown() {
	if err := a.close(); err != nil {
		a.log.WithError(err).Warn("failed to close resources")
	}
}
