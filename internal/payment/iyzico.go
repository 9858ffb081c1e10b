package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/noah-isme/toko-checkout/internal/pricing"
)

const iyzicoInitPath = "/payment/iyzico/checkoutform/initialize/auth/ecom"

// Iyzico builds signed checkout-form requests and verifies Iyzico webhooks.
type Iyzico struct {
	APIKey    string
	SecretKey string
	BaseURL   string
	// RandomKey overrides the per-request nonce. Defaults to a random UUID.
	RandomKey func() string
}

// Name implements Provider.
func (Iyzico) Name() string { return "iyzico" }

type iyzicoAddress struct {
	ContactName string `json:"contactName"`
	City        string `json:"city"`
	Country     string `json:"country"`
	Address     string `json:"address"`
	ZipCode     string `json:"zipCode,omitempty"`
}

type iyzicoBuyer struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	Surname             string `json:"surname"`
	GsmNumber           string `json:"gsmNumber"`
	Email               string `json:"email"`
	IdentityNumber      string `json:"identityNumber"`
	RegistrationAddress string `json:"registrationAddress"`
	IP                  string `json:"ip"`
	City                string `json:"city"`
	Country             string `json:"country"`
	ZipCode             string `json:"zipCode,omitempty"`
}

type iyzicoBasketItem struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Category1 string `json:"category1"`
	ItemType  string `json:"itemType"`
	Price     string `json:"price"`
}

// IyzicoCheckoutForm is the checkout-form initialise request body.
type IyzicoCheckoutForm struct {
	Locale              string             `json:"locale"`
	ConversationID      string             `json:"conversationId"`
	Price               string             `json:"price"`
	PaidPrice           string             `json:"paidPrice"`
	Currency            string             `json:"currency"`
	BasketID            string             `json:"basketId"`
	PaymentGroup        string             `json:"paymentGroup"`
	CallbackURL         string             `json:"callbackUrl"`
	EnabledInstallments []int              `json:"enabledInstallments"`
	Buyer               iyzicoBuyer        `json:"buyer"`
	ShippingAddress     iyzicoAddress      `json:"shippingAddress"`
	BillingAddress      iyzicoAddress      `json:"billingAddress"`
	BasketItems         []iyzicoBasketItem `json:"basketItems"`
}

func splitName(full string) (string, string) {
	full = strings.TrimSpace(full)
	i := strings.LastIndex(full, " ")
	if i < 0 {
		return full, full
	}
	return full[:i], full[i+1:]
}

// CreateIntent builds the checkout-form request. Basket rows carry VAT-inclusive
// line totals plus shipping; paidPrice is the grand total after discount.
func (p Iyzico) CreateIntent(_ context.Context, req IntentRequest) (IntentResponse, error) {
	if p.APIKey == "" || p.SecretKey == "" {
		return IntentResponse{}, errors.New("iyzico credentials missing")
	}
	snap := req.Snapshot
	amount, err := MinorUnits(snap.GrandTotal)
	if err != nil {
		return IntentResponse{}, err
	}
	items := make([]iyzicoBasketItem, 0, len(snap.Lines)+1)
	basketTotal := pricing.Zero
	for i, l := range snap.Lines {
		lineTotal := l.LineSubtotal.Add(l.VatAmount)
		price, err := DecimalString(lineTotal)
		if err != nil {
			return IntentResponse{}, err
		}
		id := fmt.Sprintf("line-%d", i+1)
		if l.ProductID != nil {
			id = l.ProductID.String()
		}
		items = append(items, iyzicoBasketItem{ID: id, Name: l.Name, Category1: "General", ItemType: "PHYSICAL", Price: price})
		basketTotal = basketTotal.Add(lineTotal)
	}
	if snap.Shipping.IsPositive() {
		price, err := DecimalString(snap.Shipping)
		if err != nil {
			return IntentResponse{}, err
		}
		items = append(items, iyzicoBasketItem{ID: "shipping", Name: "Shipping", Category1: "Shipping", ItemType: "VIRTUAL", Price: price})
		basketTotal = basketTotal.Add(snap.Shipping)
	}
	price, err := DecimalString(basketTotal)
	if err != nil {
		return IntentResponse{}, err
	}
	paid, err := DecimalString(snap.GrandTotal)
	if err != nil {
		return IntentResponse{}, err
	}

	first, last := splitName(snap.ShippingAddress.FullName)
	billing := snap.BillingAddress
	contact := billing.FullName
	if billing.CompanyName != "" {
		contact = billing.CompanyName
	}
	identity := billing.IdentityNumber
	if identity == "" {
		identity = "11111111111"
	}
	currency := snap.Currency
	if currency == "" {
		currency = "TRY"
	}
	body := IyzicoCheckoutForm{
		Locale:              "tr",
		ConversationID:      snap.Number,
		Price:               price,
		PaidPrice:           paid,
		Currency:            currency,
		BasketID:            snap.Number,
		PaymentGroup:        "PRODUCT",
		CallbackURL:         req.CallbackURL,
		EnabledInstallments: []int{2, 3, 6, 9},
		Buyer: iyzicoBuyer{
			ID:                  snap.UserID.String(),
			Name:                first,
			Surname:             last,
			GsmNumber:           snap.ShippingAddress.Phone,
			Email:               req.Email,
			IdentityNumber:      identity,
			RegistrationAddress: billing.Detail,
			IP:                  req.UserIP,
			City:                billing.City,
			Country:             billing.Country,
			ZipCode:             billing.ZipCode,
		},
		ShippingAddress: iyzicoAddress{
			ContactName: snap.ShippingAddress.FullName,
			City:        snap.ShippingAddress.City,
			Country:     snap.ShippingAddress.Country,
			Address:     snap.ShippingAddress.Detail,
			ZipCode:     snap.ShippingAddress.ZipCode,
		},
		BillingAddress: iyzicoAddress{
			ContactName: contact,
			City:        billing.City,
			Country:     billing.Country,
			Address:     billing.Detail,
			ZipCode:     billing.ZipCode,
		},
		BasketItems: items,
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return IntentResponse{}, fmt.Errorf("encode checkout form: %w", err)
	}
	rnd := p.randomKey()
	return IntentResponse{
		Provider: p.Name(),
		Endpoint: strings.TrimRight(p.BaseURL, "/") + iyzicoInitPath,
		Amount:   amount,
		Body:     body,
		Headers: map[string]string{
			"Authorization": p.Authorization(rnd, iyzicoInitPath, raw),
			"x-iyzi-rnd":    rnd,
		},
	}, nil
}

func (p Iyzico) randomKey() string {
	if p.RandomKey != nil {
		return p.RandomKey()
	}
	return uuid.NewString()
}

func (p Iyzico) hmacHex(parts ...string) string {
	mac := hmac.New(sha256.New, []byte(p.SecretKey))
	for _, s := range parts {
		mac.Write([]byte(s))
	}
	return hex.EncodeToString(mac.Sum(nil))
}

// Authorization renders the IYZWSv2 header for a request body.
func (p Iyzico) Authorization(randomKey, path string, body []byte) string {
	sig := p.hmacHex(randomKey, path, string(body))
	plain := "apiKey:" + p.APIKey + "&randomKey:" + randomKey + "&signature:" + sig
	return "IYZWSv2 " + base64.StdEncoding.EncodeToString([]byte(plain))
}

// IyzicoWebhook is the checkout-form notification body.
type IyzicoWebhook struct {
	EventType      string `json:"iyziEventType"`
	PaymentID      string `json:"iyziPaymentId"`
	Token          string `json:"token"`
	ConversationID string `json:"paymentConversationId"`
	Status         string `json:"status"`
}

// WebhookSignature computes the X-IYZ-SIGNATURE-V3 value for a notification.
func (p Iyzico) WebhookSignature(w IyzicoWebhook) string {
	return p.hmacHex(p.SecretKey, w.EventType, w.PaymentID, w.Token, w.ConversationID, w.Status)
}

// VerifyCallback checks the webhook signature. Iyzico notifications do not carry
// the paid amount; it was fixed by the signed checkout form.
func (p Iyzico) VerifyCallback(r *http.Request, body []byte) (CallbackResult, error) {
	var hook IyzicoWebhook
	if err := json.Unmarshal(body, &hook); err != nil {
		return CallbackResult{}, fmt.Errorf("parse webhook: %w", err)
	}
	if hook.ConversationID == "" || hook.Status == "" {
		return CallbackResult{}, errors.New("webhook missing required fields")
	}
	got := strings.ToLower(strings.TrimSpace(r.Header.Get("X-IYZ-SIGNATURE-V3")))
	if !hmac.Equal([]byte(p.WebhookSignature(hook)), []byte(got)) {
		return CallbackResult{Valid: false}, nil
	}
	res := CallbackResult{
		Valid:       true,
		OrderNumber: hook.ConversationID,
		Amount:      -1,
		Status:      StatusFailed,
		Payload:     body,
	}
	if strings.EqualFold(hook.Status, "SUCCESS") {
		res.Status = StatusSuccess
	}
	return res, nil
}
