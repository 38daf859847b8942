package app

import (
	"context"
	"errors"

	"hr-testing-service/internal/domain"
)

// Notifier publishes engine events to subscribers (websocket clients, Redis, event log).
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}

// Notifiers fans a notification out to every notifier; one failing does not stop the others.
type Notifiers []Notifier

func (ns Notifiers) Notify(ctx context.Context, n domain.Notification) error {
	var errs []error
	for _, notifier := range ns {
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
