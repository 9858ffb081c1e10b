package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// TypeOrderMail is the asynq task type for order notification emails.
const TypeOrderMail = "notify:order_mail"

// QueueName is the asynq queue notification tasks are placed on.
const QueueName = "notifications"

// Kind selects the email template.
type Kind string

const (
	KindConfirmation Kind = "order_confirmation"
	KindAdminNew     Kind = "admin_new_order"
	KindAdminPaid    Kind = "admin_order_paid"
)

// OrderMail is the task payload for an order notification.
type OrderMail struct {
	Kind          Kind     `json:"kind"`
	To            []string `json:"to"`
	OrderID       string   `json:"orderId"`
	OrderNumber   string   `json:"orderNumber"`
	PaymentMethod string   `json:"paymentMethod"`
	GrandTotal    string   `json:"grandTotal"`
	Currency      string   `json:"currency"`
}

// NewOrderMailTask encodes m as an asynq task. The task id makes a repeated
// event for the same order and kind collapse into one delivery.
func NewOrderMailTask(m OrderMail) (*asynq.Task, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode order mail: %w", err)
	}
	return asynq.NewTask(TypeOrderMail, payload,
		asynq.Queue(QueueName),
		asynq.MaxRetry(5),
		asynq.Timeout(30*time.Second),
		asynq.TaskID(string(m.Kind)+":"+m.OrderID),
	), nil
}
