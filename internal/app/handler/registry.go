package handler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hickar/mailagent/internal/app/composer"
	"github.com/hickar/mailagent/internal/app/config"
	"github.com/hickar/mailagent/internal/app/mailbox"
	"github.com/hickar/mailagent/internal/app/session"
	"github.com/hickar/mailagent/internal/pkg/kvstore"
)

// Registry holds one handler per configured account, keyed by account
// name. Handlers are built eagerly at startup so misconfiguration
// surfaces immediately, while connections themselves stay lazy.
type Registry struct {
	handlers *kvstore.KVStore[string, *Handler]
	order    []string
	logger   *slog.Logger
}

func NewRegistry(cfg config.Config, dialer session.Dialer, logger *slog.Logger) *Registry {
	registry := &Registry{
		handlers: kvstore.New[string, *Handler](),
		logger:   logger,
	}

	for _, account := range cfg.Accounts {
		accountLogger := logger.With(slog.String("account", account.Name))

		manager := session.NewManager(account.Incoming, dialer, cfg.Retry, accountLogger)
		inbox := mailbox.NewClient(manager, accountLogger)
		sender := composer.NewClient(account.Outgoing, account.Sender(), accountLogger)

		registry.handlers.Set(account.Name, New(account, inbox, sender, accountLogger))
		registry.order = append(registry.order, account.Name)
	}

	return registry
}

// Get looks up the handler for an account name.
func (r *Registry) Get(name string) (*Handler, error) {
	h, ok := r.handlers.Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown account %q", name)
	}
	return h, nil
}

// Names returns account names in configuration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// CloseAll shuts handlers down in reverse configuration order.
func (r *Registry) CloseAll(ctx context.Context) {
	for i := len(r.order) - 1; i >= 0; i-- {
		h, ok := r.handlers.Get(r.order[i])
		if !ok {
			continue
		}
		h.Close(ctx)
		r.logger.DebugContext(ctx, "closed account session", slog.String("account", r.order[i]))
	}
}
