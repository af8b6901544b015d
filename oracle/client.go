package oracle

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"claimledger/fingerprint"
)

// Client submits decryption requests to the confidential value oracle and
// returns the oracle-assigned request id. Answers arrive later through the
// callback endpoint; nothing blocks on the round-trip.
type Client interface {
	RequestDecryption(ctx context.Context, handles []fingerprint.Handle, kind Kind) (uuid.UUID, error)
}

// HTTPClient talks to an external oracle service.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{baseURL: baseURL, http: http.DefaultClient}
}

func (c *HTTPClient) RequestDecryption(ctx context.Context, handles []fingerprint.Handle, kind Kind) (uuid.UUID, error) {
	encoded := make([]string, len(handles))
	for i, h := range handles {
		encoded[i] = base64.StdEncoding.EncodeToString(h)
	}
	body, err := json.Marshal(map[string]any{
		"handles": encoded,
		"kind":    string(kind),
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("oracle: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/requests", bytes.NewReader(body))
	if err != nil {
		return uuid.Nil, fmt.Errorf("oracle: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return uuid.Nil, fmt.Errorf("oracle: submit request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return uuid.Nil, fmt.Errorf("oracle: submit request: status %d", resp.StatusCode)
	}

	var out struct {
		RequestID string `json:"request_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return uuid.Nil, fmt.Errorf("oracle: decode response: %w", err)
	}
	id, err := uuid.Parse(out.RequestID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("oracle: parse request id: %w", err)
	}
	return id, nil
}
