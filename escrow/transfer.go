package escrow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Transferer moves value out of the ledger to an account's payment rail.
// A transfer failure must abort the surrounding state transition, so
// implementations are called before the transaction commits.
type Transferer interface {
	Transfer(ctx context.Context, accountID string, amount int64) error
}

// PayoutClient is an HTTP Transferer talking to the payment rail service.
type PayoutClient struct {
	baseURL string
	http    *http.Client
}

func NewPayoutClient(baseURL string) *PayoutClient {
	return &PayoutClient{baseURL: baseURL, http: http.DefaultClient}
}

func (c *PayoutClient) Transfer(ctx context.Context, accountID string, amount int64) error {
	body, err := json.Marshal(map[string]any{
		"account": accountID,
		"amount":  amount,
	})
	if err != nil {
		return fmt.Errorf("escrow: marshal payout: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/payouts", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("escrow: build payout: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("escrow: payout: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("escrow: payout: status %d", resp.StatusCode)
	}
	return nil
}
