// Package rng abstracts the external randomness oracle. A roll is split into
// two entry points: a request that returns a pending request id, and an
// asynchronous fulfillment carrying the random words. No in-process PRNG is
// trusted for settlement outside of development.
package rng

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Source issues randomness requests. The matching fulfillment arrives later
// through the engine's fulfillment entry point, quoting the request id.
type Source interface {
	// Request asks the oracle for random words and returns the request id.
	Request(ctx context.Context) (string, error)
}

// Fulfiller consumes oracle fulfillments. Implemented by the game service.
type Fulfiller interface {
	Fulfill(ctx context.Context, requestID string, values []uint64) error
}

// Oracle forwards requests to an external VRF coordinator over HTTP. The
// coordinator calls back into POST /api/v1/randomness/fulfill when the proof
// is ready.
type Oracle struct {
	endpoint string
	client   *http.Client
}

// NewOracle creates an oracle-backed source.
func NewOracle(endpoint string) *Oracle {
	return &Oracle{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type oracleRequest struct {
	RequestID string `json:"request_id"`
	NumWords  int    `json:"num_words"`
}

func (o *Oracle) Request(ctx context.Context) (string, error) {
	id := uuid.New().String()
	body, err := json.Marshal(oracleRequest{RequestID: id, NumWords: 2})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("rng: oracle request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("rng: oracle returned status %d", resp.StatusCode)
	}
	return id, nil
}

// DevSource fulfills its own requests from crypto/rand on a short delay.
// Development and testing only; it preserves the async two-step shape so the
// rest of the engine behaves exactly as it does against the real oracle.
type DevSource struct {
	fulfiller Fulfiller
	delay     time.Duration
}

// NewDevSource creates a self-fulfilling source. Bind the fulfiller before
// the first request.
func NewDevSource(delay time.Duration) *DevSource {
	return &DevSource{delay: delay}
}

// Bind sets the fulfillment target.
func (d *DevSource) Bind(f Fulfiller) { d.fulfiller = f }

func (d *DevSource) Request(_ context.Context) (string, error) {
	if d.fulfiller == nil {
		return "", fmt.Errorf("rng: dev source has no fulfiller bound")
	}
	id := uuid.New().String()

	go func() {
		time.Sleep(d.delay)
		values := make([]uint64, 2)
		for i := range values {
			var buf [8]byte
			if _, err := rand.Read(buf[:]); err != nil {
				slog.Error("dev randomness failed", "err", err)
				return
			}
			values[i] = binary.BigEndian.Uint64(buf[:])
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.fulfiller.Fulfill(ctx, id, values); err != nil {
			slog.Error("dev fulfillment rejected", "request_id", id, "err", err)
		}
	}()

	return id, nil
}

// Manual records requests and never fulfills them on its own. Tests drive
// the fulfillment entry point directly.
type Manual struct {
	Requests []string
}

func (m *Manual) Request(_ context.Context) (string, error) {
	id := uuid.New().String()
	m.Requests = append(m.Requests, id)
	return id, nil
}
