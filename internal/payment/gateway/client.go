// Package gateway implements the HTTP client for the external payment
// processor. Every non-2xx response, non-success transaction status or
// transport failure surfaces uniformly as ErrVerificationFailed with the
// gateway's message preserved for diagnostics.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/classbill/classbill/internal/config"
	paymentdomain "github.com/classbill/classbill/internal/payment/domain"
	"go.uber.org/zap"
)

type Client struct {
	baseURL string
	secret  string
	http    *http.Client
	log     *zap.Logger
}

func NewClient(cfg config.Config, log *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.Gateway.BaseURL, "/"),
		secret:  cfg.Gateway.SecretKey,
		http: &http.Client{
			Timeout: cfg.Gateway.Timeout,
		},
		log: log.Named("payment.gateway"),
	}
}

type verifyEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    transactionData `json:"data"`
}

type transactionData struct {
	Reference     string `json:"reference"`
	Status        string `json:"status"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	Authorization struct {
		AuthorizationCode string `json:"authorization_code"`
	} `json:"authorization"`
	Customer struct {
		CustomerCode string `json:"customer_code"`
	} `json:"customer"`
	GatewayResponse string `json:"gateway_response"`
}

// Verify implements domain.Gateway. One gateway call per invocation.
func (c *Client) Verify(ctx context.Context, reference string) (paymentdomain.VerifiedPayment, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return paymentdomain.VerifiedPayment{}, fmt.Errorf("%w: empty reference", paymentdomain.ErrVerificationFailed)
	}

	url := fmt.Sprintf("%s/transaction/verify/%s", c.baseURL, reference)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return paymentdomain.VerifiedPayment{}, fmt.Errorf("%w: %v", paymentdomain.ErrVerificationFailed, err)
	}

	return c.do(req)
}

// ChargeAuthorization implements domain.Gateway. Used by the renewal job to
// charge a stored payment authorization.
func (c *Client) ChargeAuthorization(ctx context.Context, authorizationRef, customerRef string, amount int64, currency string) (paymentdomain.VerifiedPayment, error) {
	authorizationRef = strings.TrimSpace(authorizationRef)
	if authorizationRef == "" {
		return paymentdomain.VerifiedPayment{}, fmt.Errorf("%w: no stored authorization", paymentdomain.ErrVerificationFailed)
	}

	body, err := json.Marshal(map[string]any{
		"authorization_code": authorizationRef,
		"customer":           customerRef,
		"amount":             amount,
		"currency":           currency,
	})
	if err != nil {
		return paymentdomain.VerifiedPayment{}, fmt.Errorf("%w: %v", paymentdomain.ErrVerificationFailed, err)
	}

	url := c.baseURL + "/transaction/charge_authorization"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return paymentdomain.VerifiedPayment{}, fmt.Errorf("%w: %v", paymentdomain.ErrVerificationFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req)
}

func (c *Client) do(req *http.Request) (paymentdomain.VerifiedPayment, error) {
	req.Header.Set("Authorization", "Bearer "+c.secret)

	resp, err := c.http.Do(req)
	if err != nil {
		// Covers the bounded timeout as well.
		return paymentdomain.VerifiedPayment{}, fmt.Errorf("%w: %v", paymentdomain.ErrVerificationFailed, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return paymentdomain.VerifiedPayment{}, fmt.Errorf("%w: %v", paymentdomain.ErrVerificationFailed, err)
	}

	var envelope verifyEnvelope
	if jsonErr := json.Unmarshal(raw, &envelope); jsonErr != nil && resp.StatusCode < 300 {
		return paymentdomain.VerifiedPayment{}, fmt.Errorf("%w: malformed gateway response", paymentdomain.ErrVerificationFailed)
	}

	if resp.StatusCode >= 300 || !envelope.Status {
		message := envelope.Message
		if message == "" {
			message = strings.TrimSpace(string(raw))
		}
		c.log.Warn("gateway call failed",
			zap.Int("status_code", resp.StatusCode),
			zap.String("message", message),
		)
		return paymentdomain.VerifiedPayment{}, fmt.Errorf("%w: %s", paymentdomain.ErrVerificationFailed, message)
	}

	verified := paymentdomain.VerifiedPayment{
		Reference:        envelope.Data.Reference,
		Status:           envelope.Data.Status,
		AmountPaid:       envelope.Data.Amount,
		Currency:         strings.ToUpper(envelope.Data.Currency),
		CustomerRef:      envelope.Data.Customer.CustomerCode,
		AuthorizationRef: envelope.Data.Authorization.AuthorizationCode,
		GatewayMessage:   envelope.Data.GatewayResponse,
	}

	if verified.Status != "success" {
		return paymentdomain.VerifiedPayment{}, fmt.Errorf("%w: transaction status %q", paymentdomain.ErrVerificationFailed, verified.Status)
	}
	return verified, nil
}
