package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"time"
)

// VerificationRequest carries everything an external checker needs to
// confirm a task actually happened.
type VerificationRequest struct {
	UserID    string `json:"user_id"` // lowercase wallet address
	ProjectID string `json:"project_id"`
	TaskType  string `json:"task_type"`
	Data      string `json:"data,omitempty"` // caller-supplied evidence (tx hash, handle, ...)

	// Per-task check duration from the catalog; honored by the simulated
	// verifier, informational for remote ones.
	VerifyDelayMs int `json:"verify_delay_ms,omitempty"`
}

// Verifier is the external pass/fail check (social-follow API, on-chain
// event watch). The tracker only sequences around it and never implements
// the check itself. A false result with nil error means the check ran and
// did not pass.
type Verifier interface {
	Verify(ctx context.Context, req VerificationRequest) (bool, error)
}

// SimulatedVerifier waits for the request's per-task delay (falling back to
// Delay) and passes with the given rate. Stands in for real checkers in dev
// and testnet deployments.
type SimulatedVerifier struct {
	Delay    time.Duration // fallback when the request carries no delay
	PassRate float64       // 0..1; 1 always passes
}

func (v *SimulatedVerifier) Verify(ctx context.Context, req VerificationRequest) (bool, error) {
	delay := v.Delay
	if req.VerifyDelayMs > 0 {
		delay = time.Duration(req.VerifyDelayMs) * time.Millisecond
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-timer.C:
	}

	if v.PassRate >= 1 {
		return true, nil
	}
	return rand.Float64() < v.PassRate, nil
}

// RemoteVerifier calls an external verification service over HTTP.
type RemoteVerifier struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewRemoteVerifier(baseURL, token string) *RemoteVerifier {
	return &RemoteVerifier{
		BaseURL: baseURL,
		Token:   token,
		Client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Verify posts the request to /verify on the verification service.
func (v *RemoteVerifier) Verify(ctx context.Context, req VerificationRequest) (bool, error) {
	url := fmt.Sprintf("%s/verify", v.BaseURL)

	jsonData, _ := json.Marshal(req)

	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return false, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+v.Token)

	resp, err := v.Client.Do(httpReq)
	if err != nil {
		return false, fmt.Errorf("verification service unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))

	if resp.StatusCode != http.StatusOK {
		log.Printf("Verifier /verify returned %d: %s", resp.StatusCode, string(body))
		return false, fmt.Errorf("verification service returned %d", resp.StatusCode)
	}

	var out struct {
		Verified bool `json:"verified"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return false, err
	}
	return out.Verified, nil
}
