package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-checkout/internal/obs"
)

// Mailer delivers order mail tasks through a Sender.
type Mailer struct {
	Mail    Sender
	Enabled bool
	Logger  zerolog.Logger
}

// ProcessTask implements asynq.Handler.
func (m Mailer) ProcessTask(_ context.Context, t *asynq.Task) error {
	var mail OrderMail
	if err := json.Unmarshal(t.Payload(), &mail); err != nil {
		return fmt.Errorf("decode order mail: %v: %w", err, asynq.SkipRetry)
	}
	if !m.Enabled || m.Mail == nil {
		obs.Inc(obs.NotificationsTotal, string(mail.Kind), "disabled")
		return nil
	}
	subject := subjectFor(mail)
	body := bodyFor(mail)
	var joined error
	for _, to := range mail.To {
		if err := m.Mail.Send(to, subject, body); err != nil {
			joined = errors.Join(joined, fmt.Errorf("send to %s: %w", to, err))
		}
	}
	if joined != nil {
		obs.Inc(obs.NotificationsTotal, string(mail.Kind), "send_error")
		return joined
	}
	obs.Inc(obs.NotificationsTotal, string(mail.Kind), "sent")
	m.Logger.Info().Str("kind", string(mail.Kind)).Str("order_number", mail.OrderNumber).Int("recipients", len(mail.To)).Msg("order mail sent")
	return nil
}

func subjectFor(m OrderMail) string {
	switch m.Kind {
	case KindConfirmation:
		return fmt.Sprintf("Order %s received", m.OrderNumber)
	case KindAdminNew:
		return fmt.Sprintf("New order: %s", m.OrderNumber)
	case KindAdminPaid:
		return fmt.Sprintf("Order paid: %s", m.OrderNumber)
	default:
		return fmt.Sprintf("Order %s", m.OrderNumber)
	}
}

func bodyFor(m OrderMail) string {
	var b strings.Builder
	switch m.Kind {
	case KindConfirmation:
		b.WriteString("<p>Thank you, your order has been received.</p>")
	case KindAdminPaid:
		b.WriteString("<p>Payment was received and the order is approved.</p>")
	default:
		b.WriteString("<p>A new order was placed.</p>")
	}
	fmt.Fprintf(&b, "<p>Order number: %s<br>Total: %s %s<br>Payment: %s</p>",
		html.EscapeString(m.OrderNumber), html.EscapeString(m.GrandTotal),
		html.EscapeString(m.Currency), html.EscapeString(m.PaymentMethod))
	return b.String()
}
