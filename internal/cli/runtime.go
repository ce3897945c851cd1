package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tOgg1/gatechat/internal/config"
	"github.com/tOgg1/gatechat/internal/gateway"
	"github.com/tOgg1/gatechat/internal/logging"
	"github.com/tOgg1/gatechat/internal/metrics"
	"github.com/tOgg1/gatechat/internal/prefs"
	"github.com/tOgg1/gatechat/internal/session"
	"github.com/tOgg1/gatechat/internal/store"
)

// runtime bundles the collaborators every chat command needs.
type runtime struct {
	cfg     *config.Config
	client  *gateway.Client
	store   *store.Store
	prefs   *prefs.Manager
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func newRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	if cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	m := metrics.New()
	client, err := gateway.New(gateway.Options{
		BaseURL:   cfg.Gateway.BaseURL,
		Token:     cfg.Gateway.Token,
		Session:   cfg.Gateway.Session,
		Timeout:   cfg.Gateway.Timeout,
		RateLimit: cfg.Gateway.RateLimit,
		Burst:     cfg.Gateway.Burst,
		Observe:   m.GatewayRequest,
	})
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, cfg.StarredDBPath())
	if err != nil {
		return nil, fmt.Errorf("open starred cache: %w", err)
	}

	pm := prefs.New(cfg.PrefsPath())
	if err := pm.Load(); err != nil {
		log := logging.Component("cli")
		log.Warn().Err(err).Str("path", pm.Path()).Msg("preferences unreadable, starting fresh")
	}

	return &runtime{
		cfg:     cfg,
		client:  client,
		store:   st,
		prefs:   pm,
		metrics: m,
		logger:  logging.Component("cli"),
	}, nil
}

// newSession creates a session tuned by the session config section. A
// positive bottomThreshold overrides session.bottom_threshold.
func (rt *runtime) newSession(onChange func(), bottomThreshold int) *session.Session {
	s := rt.cfg.Session
	if bottomThreshold <= 0 {
		bottomThreshold = s.BottomThreshold
	}
	return session.New(rt.client, session.Options{
		InitialWindow:        s.InitialWindow,
		BatchSize:            s.BatchSize,
		BottomThreshold:      bottomThreshold,
		ScrollIdle:           s.ScrollIdle,
		TypingIdle:           s.TypingIdle,
		ErrorTTL:             s.ErrorTTL,
		NoticeTTL:            s.NoticeTTL,
		MutationTimeout:      s.MutationTimeout,
		SourceLanguage:       s.SourceLanguage,
		TranslateConcurrency: s.TranslateConcurrency,
		Store:                rt.store,
		Prefs:                rt.prefs,
		Metrics:              rt.metrics,
		OnChange:             onChange,
	})
}

// openSession opens chatID in a fresh session. The caller closes it.
func (rt *runtime) openSession(ctx context.Context, chatID string) (*session.Session, error) {
	sess := rt.newSession(nil, 0)
	if err := sess.Open(ctx, chatID); err != nil {
		_ = sess.Close()
		return nil, err
	}
	return sess, nil
}

func (rt *runtime) Close() error {
	var errs []error
	if rt.prefs != nil {
		errs = append(errs, rt.prefs.Close())
	}
	if rt.store != nil {
		errs = append(errs, rt.store.Close())
	}
	return errors.Join(errs...)
}

// commandContext bounds a one-shot command by the gateway timeout plus the
// mutation timeout, which covers an open followed by one mutation.
func commandContext(parent context.Context, cfg *config.Config) (context.Context, context.CancelFunc) {
	budget := cfg.Gateway.Timeout + cfg.Session.MutationTimeout
	if budget <= 0 {
		budget = time.Minute
	}
	return context.WithTimeout(parent, budget)
}
