package push

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/tmorriss/larder/internal/relay"
	"github.com/tmorriss/larder/internal/store"
)

// Fanout turns relay item_added events into web-push notifications for
// every registered device. Fire-and-forget: a failed endpoint only gets
// logged, and an expired one is pruned.
type Fanout struct {
	service *Service
	store   *store.PushStore
	logger  *slog.Logger
}

func NewFanout(service *Service, pushStore *store.PushStore, logger *slog.Logger) *Fanout {
	return &Fanout{service: service, store: pushStore, logger: logger}
}

// HandleItemAdded implements relay.ItemAddedFunc. It runs the sends on a
// separate goroutine so the relay's synchronous fan-out never waits on
// push-service round trips.
func (f *Fanout) HandleItemAdded(room string, ev relay.ItemAdded) {
	go f.notify(room, ev)
}

func (f *Fanout) notify(room string, ev relay.ItemAdded) {
	subs, err := f.store.List()
	if err != nil {
		f.logger.Error("list push subscriptions", "error", err)
		return
	}

	payload := Payload{
		Title: "Item added",
		Body:  fmt.Sprintf("%s was added to %s", ev.ItemName, ev.ListName),
		Tag:   "item-added:" + ev.ListID,
	}

	for i := range subs {
		sub := subs[i]
		err := f.service.Send(&sub, payload)
		if errors.Is(err, ErrExpired) {
			if err := f.store.DeleteByEndpoint(sub.Endpoint); err != nil {
				f.logger.Error("prune expired subscription", "error", err)
			}
			continue
		}
		if err != nil {
			f.logger.Warn("push send failed", "room", room, "error", err)
		}
	}
}
