package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-checkout/internal/db"
	"github.com/noah-isme/toko-checkout/internal/events"
	"github.com/noah-isme/toko-checkout/internal/obs"
	"github.com/noah-isme/toko-checkout/internal/order"
)

// Enqueuer is the subset of *asynq.Client used to schedule mail.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// OrderNotifier turns order events into mail tasks. Customers get a confirmation
// when an order is placed, except for bank transfers which are confirmed once
// the transfer is seen; admins hear about every new and paid order.
type OrderNotifier struct {
	Queue       Enqueuer
	AdminEmails []string
	Logger      zerolog.Logger
}

// Notify implements events.Notifier.
func (n OrderNotifier) Notify(ctx context.Context, ev db.DomainEvent) error {
	if n.Queue == nil {
		return nil
	}
	if ev.Topic != events.TopicOrderCreated && ev.Topic != events.TopicOrderPaid {
		return nil
	}
	var p events.OrderPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		return fmt.Errorf("notify: decode payload: %w", err)
	}
	base := OrderMail{
		OrderID:       p.OrderID,
		OrderNumber:   p.OrderNumber,
		PaymentMethod: p.PaymentMethod,
		GrandTotal:    p.GrandTotal,
		Currency:      p.Currency,
	}
	admins := n.admins()
	var mails []OrderMail
	switch ev.Topic {
	case events.TopicOrderCreated:
		if to := strings.TrimSpace(p.Email); to != "" && order.PaymentMethod(p.PaymentMethod) != order.PaymentBankTransfer {
			m := base
			m.Kind, m.To = KindConfirmation, []string{to}
			mails = append(mails, m)
		} else {
			obs.Inc(obs.NotificationsTotal, string(KindConfirmation), "skipped")
		}
		if len(admins) > 0 {
			m := base
			m.Kind, m.To = KindAdminNew, admins
			mails = append(mails, m)
		}
	case events.TopicOrderPaid:
		if len(admins) > 0 {
			m := base
			m.Kind, m.To = KindAdminPaid, admins
			mails = append(mails, m)
		}
	}

	var joined error
	for _, m := range mails {
		if err := n.enqueue(ctx, m); err != nil {
			joined = errors.Join(joined, err)
		}
	}
	return joined
}

func (n OrderNotifier) admins() []string {
	out := make([]string, 0, len(n.AdminEmails))
	for _, e := range n.AdminEmails {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}

func (n OrderNotifier) enqueue(ctx context.Context, m OrderMail) error {
	task, err := NewOrderMailTask(m)
	if err != nil {
		return err
	}
	_, err = n.Queue.EnqueueContext(ctx, task)
	switch {
	case errors.Is(err, asynq.ErrTaskIDConflict), errors.Is(err, asynq.ErrDuplicateTask):
		obs.Inc(obs.NotificationsTotal, string(m.Kind), "duplicate")
		return nil
	case err != nil:
		obs.Inc(obs.NotificationsTotal, string(m.Kind), "enqueue_error")
		return fmt.Errorf("notify: enqueue %s: %w", m.Kind, err)
	}
	obs.Inc(obs.NotificationsTotal, string(m.Kind), "enqueued")
	n.Logger.Debug().Str("kind", string(m.Kind)).Str("order_number", m.OrderNumber).Msg("order mail enqueued")
	return nil
}
