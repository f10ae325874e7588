package main

import (
	"context"
	"fmt"

	"github.com/bob-park/on-time-session/credstore"
	"github.com/bob-park/on-time-session/credstore/filestore"
	"github.com/bob-park/on-time-session/credstore/redisstore"
	"github.com/bob-park/on-time-session/devicereg"
	"github.com/bob-park/on-time-session/exchange"
	"github.com/bob-park/on-time-session/internal/config"
	apperrors "github.com/bob-park/on-time-session/internal/errors"
	"github.com/bob-park/on-time-session/session"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// app is the wired library for one command invocation.
type app struct {
	cfg     config.Config
	client  *exchange.Client
	manager *session.Manager
	events  <-chan session.Event
	closers []func() error
}

func loadConfig() (config.Config, error) {
	if configPath == "" {
		return config.New(), nil
	}
	return config.NewFromFile(configPath)
}

func newClient(ctx context.Context, cfg config.Config) (*exchange.Client, error) {
	return exchange.New(ctx, exchange.ConfigFrom(cfg), exchange.WithLogger(log.Logger))
}

// newApp builds the store, the exchange client and a started Manager.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}

	store, err := a.openStore(cfg)
	if err != nil {
		return nil, err
	}

	a.client, err = newClient(ctx, cfg)
	if err != nil {
		a.close()
		return nil, err
	}

	a.manager = session.New(a.client, store,
		session.WithConfig(cfg),
		session.WithLogger(log.Logger),
		session.WithDeviceRegistrar(func(src oauth2.TokenSource) session.DeviceRegistrar {
			return devicereg.New(cfg.GetAPIHost(), src, devicereg.WithLogger(log.Logger))
		}),
	)
	a.closers = append(a.closers, a.manager.Close)
	a.events, _ = a.manager.Subscribe()

	if err := a.manager.Start(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) openStore(cfg config.StorageConfig) (credstore.Store, error) {
	switch cfg.GetCredentialStore() {
	case config.StoreRedis:
		rdb := goredis.NewClient(&goredis.Options{Addr: cfg.GetRedisAddr()})
		a.closers = append(a.closers, rdb.Close)
		return redisstore.New(rdb, cfg.GetRedisNamespace()), nil
	case config.StoreFile:
		store, err := filestore.NewWithPassphrase(cfg.GetCredentialDir(), cfg.GetCredentialPassphrase(), filestore.WithLogger(log.Logger))
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%w: unknown credential store %q", apperrors.ErrInvalidRequest, cfg.GetCredentialStore())
	}
}

// settle waits until no restore or refresh is in progress.
func (a *app) settle(ctx context.Context) error {
	for {
		switch a.manager.State() {
		case session.Restoring, session.Refreshing:
		default:
			return nil
		}
		select {
		case _, ok := <-a.events:
			if !ok {
				return apperrors.ErrManagerClosed
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// drainEvents discards events that are already queued.
func (a *app) drainEvents() {
	for {
		select {
		case <-a.events:
		default:
			return
		}
	}
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn().Err(err).Msg("Closing resource failed")
		}
	}
	a.closers = nil
}
