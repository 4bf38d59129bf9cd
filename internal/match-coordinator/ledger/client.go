package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/skill-wager-platform/internal/match-coordinator/match"
)

// errPermanent marca respostas que não adianta repetir
var errPermanent = errors.New("ledger rejected request")

// movementRequest espelha o payload de /wallet/debit e /wallet/credit
type movementRequest struct {
	UserID      string `json:"userId"`
	AmountMinor int64  `json:"amount_minor"`
	ExternalRef string `json:"external_ref"`
}

// Client fala com o wallet-service. Cada chamada carrega uma external_ref,
// então as tentativas são seguras de repetir.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Log     *zap.Logger

	Attempts int
	Backoff  time.Duration // espera Backoff*(i+1) entre tentativas
}

func New(base string, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		BaseURL:  base,
		HTTP:     &http.Client{Timeout: 2 * time.Second},
		Log:      log,
		Attempts: 3,
		Backoff:  300 * time.Millisecond,
	}
}

// Debit retira a aposta. Saldo insuficiente ou carteira inexistente viram
// match.ErrInsufficientFunds.
func (c *Client) Debit(ctx context.Context, userID string, amount int64, ref string) error {
	return c.do(ctx, "/wallet/debit", movementRequest{UserID: userID, AmountMinor: amount, ExternalRef: ref})
}

// Credit paga ou estorna saldo
func (c *Client) Credit(ctx context.Context, userID string, amount int64, ref string) error {
	return c.do(ctx, "/wallet/credit", movementRequest{UserID: userID, AmountMinor: amount, ExternalRef: ref})
}

func (c *Client) do(ctx context.Context, path string, body movementRequest) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	attempts := c.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		lastErr = c.post(ctx, path, payload)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, match.ErrInsufficientFunds) || errors.Is(lastErr, errPermanent) {
			return lastErr
		}
		c.Log.Warn("ledger call failed",
			zap.String("path", path),
			zap.String("user_id", body.UserID),
			zap.String("external_ref", body.ExternalRef),
			zap.Int("attempt", i+1),
			zap.Error(lastErr),
		)
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", match.ErrLedgerUnavailable, ctx.Err())
		case <-time.After(c.Backoff * time.Duration(i+1)):
		}
	}
	return fmt.Errorf("%w: %v", match.ErrLedgerUnavailable, lastErr)
}

func (c *Client) post(ctx context.Context, path string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: %v", errPermanent, err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode < 300:
		return nil
	case res.StatusCode == http.StatusPaymentRequired, res.StatusCode == http.StatusNotFound:
		return match.ErrInsufficientFunds
	case res.StatusCode >= 500:
		return fmt.Errorf("wallet %s http %d", path, res.StatusCode)
	default:
		return fmt.Errorf("%w: wallet %s http %d", errPermanent, path, res.StatusCode)
	}
}
