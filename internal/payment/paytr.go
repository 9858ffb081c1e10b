package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/noah-isme/toko-checkout/internal/pricing"
)

const payTREndpoint = "https://www.paytr.com/odeme/api/get-token"

// PayTR signs iframe token requests and verifies PayTR notification callbacks.
type PayTR struct {
	MerchantID   string
	MerchantKey  string
	MerchantSalt string
	TestMode     bool
	OkURL        string
	FailURL      string
	// Currency is PayTR's currency code, "TL" when empty.
	Currency       string
	TimeoutMinutes int
}

// Name implements Provider.
func (PayTR) Name() string { return "paytr" }

func (p PayTR) currency() string {
	if p.Currency == "" {
		return "TL"
	}
	return p.Currency
}

func (p PayTR) testMode() string {
	if p.TestMode {
		return "1"
	}
	return "0"
}

func (p PayTR) sign(parts ...string) string {
	mac := hmac.New(sha256.New, []byte(p.MerchantKey))
	for _, s := range parts {
		mac.Write([]byte(s))
	}
	mac.Write([]byte(p.MerchantSalt))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// MerchantOID converts an order number into PayTR's alphanumeric merchant_oid.
func MerchantOID(number string) string {
	return strings.ReplaceAll(number, "-", "")
}

// OrderNumberFromOID restores the ORD-YYYYMMDD-NNNN form of a merchant_oid.
func OrderNumberFromOID(oid string) string {
	if strings.Contains(oid, "-") || len(oid) < 12 || !strings.HasPrefix(oid, "ORD") {
		return oid
	}
	return oid[:3] + "-" + oid[3:11] + "-" + oid[11:]
}

// basketJSON renders [name, unit price with VAT, quantity] rows.
func basketJSON(req IntentRequest) (string, error) {
	rows := make([][]any, 0, len(req.Snapshot.Lines))
	for _, l := range req.Snapshot.Lines {
		unit := l.UnitPrice.Add(pricing.Percent(l.UnitPrice, l.VatRate))
		price, err := DecimalString(unit)
		if err != nil {
			return "", err
		}
		rows = append(rows, []any{l.Name, price, l.Quantity})
	}
	b, err := json.Marshal(rows)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CreateIntent builds the signed get-token form for the order.
func (p PayTR) CreateIntent(_ context.Context, req IntentRequest) (IntentResponse, error) {
	if p.MerchantID == "" || p.MerchantKey == "" || p.MerchantSalt == "" {
		return IntentResponse{}, errors.New("paytr credentials missing")
	}
	amount, err := MinorUnits(req.Snapshot.GrandTotal)
	if err != nil {
		return IntentResponse{}, err
	}
	basket, err := basketJSON(req)
	if err != nil {
		return IntentResponse{}, fmt.Errorf("encode basket: %w", err)
	}
	oid := MerchantOID(req.Snapshot.Number)
	amountStr := strconv.FormatInt(amount, 10)
	const noInstallment, maxInstallment = "0", "0"
	token := p.sign(p.MerchantID, req.UserIP, oid, req.Email, amountStr, basket,
		noInstallment, maxInstallment, p.currency(), p.testMode())

	addr := req.Snapshot.ShippingAddress
	timeout := p.TimeoutMinutes
	if timeout <= 0 {
		timeout = 30
	}
	form := map[string]string{
		"merchant_id":       p.MerchantID,
		"user_ip":           req.UserIP,
		"merchant_oid":      oid,
		"email":             req.Email,
		"payment_amount":    amountStr,
		"paytr_token":       token,
		"user_basket":       basket,
		"debug_on":          p.testMode(),
		"no_installment":    noInstallment,
		"max_installment":   maxInstallment,
		"user_name":         addr.FullName,
		"user_address":      strings.Join([]string{addr.Detail, addr.District, addr.City}, " "),
		"user_phone":        addr.Phone,
		"merchant_ok_url":   p.OkURL,
		"merchant_fail_url": p.FailURL,
		"timeout_limit":     strconv.Itoa(timeout),
		"currency":          p.currency(),
		"test_mode":         p.testMode(),
	}
	return IntentResponse{Provider: p.Name(), Endpoint: payTREndpoint, Amount: amount, Token: token, Form: form}, nil
}

// CallbackHash computes the hash PayTR sends with a notification.
func (p PayTR) CallbackHash(oid, status, totalAmount string) string {
	return p.sign(oid, status, totalAmount)
}

// VerifyCallback checks the notification hash and extracts the order and amount.
func (p PayTR) VerifyCallback(_ *http.Request, body []byte) (CallbackResult, error) {
	form, err := url.ParseQuery(string(body))
	if err != nil {
		return CallbackResult{}, fmt.Errorf("parse callback: %w", err)
	}
	oid := form.Get("merchant_oid")
	status := form.Get("status")
	total := form.Get("total_amount")
	if oid == "" || status == "" || total == "" {
		return CallbackResult{}, errors.New("callback missing required fields")
	}
	expected := p.CallbackHash(oid, status, total)
	if !hmac.Equal([]byte(expected), []byte(form.Get("hash"))) {
		return CallbackResult{Valid: false}, nil
	}
	amount, err := strconv.ParseInt(total, 10, 64)
	if err != nil {
		return CallbackResult{}, fmt.Errorf("invalid total_amount: %w", err)
	}
	res := CallbackResult{
		Valid:       true,
		OrderNumber: OrderNumberFromOID(oid),
		Amount:      amount,
		Status:      StatusFailed,
		Payload:     body,
	}
	if status == "success" {
		res.Status = StatusSuccess
	}
	return res, nil
}
