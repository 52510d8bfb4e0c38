package cli

import (
	"context"
	"time"

	"imagegen/internal/config"
	"imagegen/internal/db"
	"imagegen/internal/httputil"
	"imagegen/internal/inference"
	"imagegen/internal/notify"
	"imagegen/internal/poller"
	"imagegen/internal/session"
	"imagegen/internal/state"
)

// app bundles everything one command needs to act on the session.
type app struct {
	cfg      *config.Config
	store    *db.Store
	client   *inference.Client
	poller   *poller.Poller
	notifier *notify.Notifier
	ctrl     *session.Controller
}

func newClient(cfg *config.Config) *inference.Client {
	return inference.NewClient(inference.Options{
		SubmitURL:      cfg.API.SubmitURL,
		StatusURL:      cfg.API.StatusURL,
		AuthScheme:     cfg.API.AuthScheme,
		AuthToken:      cfg.API.AuthToken,
		RequestTimeout: cfg.RequestTimeout(),
		StatusRetry: httputil.RetryConfig{
			MaxAttempts:  cfg.Poll.MaxAttempts,
			BaseDelay:    cfg.PollRetryBaseDelay(),
			MaxDelay:     10 * time.Second,
			JitterFactor: 0.25,
		},
	})
}

func newPoller(cfg *config.Config, client *inference.Client) *poller.Poller {
	return poller.New(client, poller.Options{
		Interval: cfg.PollInterval(),
		Timeout:  cfg.PollTimeout(),
	})
}

func newNotifier(cfg *config.Config) *notify.Notifier {
	return notify.NewNotifier(buildNotifySenders(cfg.Notifications, nil), cfg.Notifications.Triggers)
}

// openApp opens the store and builds a controller bound to ctx. onChange
// may be nil.
func openApp(ctx context.Context, cfg *config.Config, onChange func(session.View)) (*app, error) {
	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	client := newClient(cfg)
	p := newPoller(cfg, client)
	notifier := newNotifier(cfg)
	ctrl, err := session.New(ctx, session.Options{
		Store:        state.New(store, cfg.ModelIDs(), cfg.DefaultModel),
		Client:       client,
		Poller:       p,
		Notifier:     notifier,
		Models:       cfg.ModelIDs(),
		DefaultModel: cfg.DefaultModel,
		OnChange:     onChange,
	})
	if err != nil {
		store.Close()
		return nil, err
	}
	return &app{cfg: cfg, store: store, client: client, poller: p, notifier: notifier, ctrl: ctrl}, nil
}

func (a *app) Close() {
	a.ctrl.Close()
	a.store.Close()
}
