// Package cuescore fetches live scoreboard data for a table from the
// CueScore service. Browsers cannot call it directly, so requests run
// through a CORS relay; the client keeps that shape for parity with
// the relay's rate expectations.
package cuescore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"

	"golang.org/x/time/rate"

	"pooltv-backend/config"
)

// ErrNoMatch reports that no match is currently running on the table.
// It plays the role sql.ErrNoRows does: an expected outcome, not a
// failure.
var ErrNoMatch = errors.New("cuescore: no match running on this table")

// ErrNoData reports a well-formed response that carries no match
// payload.
var ErrNoData = errors.New("cuescore: response contains no match data")

// ErrMissingTableCode reports a fetch attempted without a table code.
var ErrMissingTableCode = errors.New("cuescore: table code is required")

// MatchData is the normalized scoreboard payload for one table.
type MatchData struct {
	PlayerA string
	PlayerB string
	ScoreA  int
	ScoreB  int
}

type apiPlayer struct {
	Name string `json:"name"`
}

type apiResponse struct {
	Error string `json:"error"`
	Match *struct {
		PlayerA apiPlayer `json:"playerA"`
		PlayerB apiPlayer `json:"playerB"`
		ScoreA  int       `json:"scoreA"`
		ScoreB  int       `json:"scoreB"`
	} `json:"match"`
}

// Client calls the scoreboard endpoint through a relay, with a single
// alternate relay attempt on transport failure.
type Client struct {
	cfg     config.CueScoreConfig
	client  *http.Client
	limiter *rate.Limiter
}

// NewClient creates a client from the cuescore configuration section.
func NewClient(cfg config.CueScoreConfig) *Client {
	return &Client{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RateBurst),
	}
}

// FetchMatchData returns the current scoreboard state for tableCode.
// A table with no running match yields ErrNoMatch. Transport failures
// are retried once against the fallback relay before propagating;
// cancellation by the caller is not retried.
func (c *Client) FetchMatchData(ctx context.Context, tableCode string) (MatchData, error) {
	if tableCode == "" {
		return MatchData{}, ErrMissingTableCode
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return MatchData{}, fmt.Errorf("cuescore: rate limiter: %w", err)
	}

	target := fmt.Sprintf("%s?tableCode=%s", c.cfg.ScoreboardURL, url.QueryEscape(tableCode))

	data, err := c.fetchVia(ctx, c.cfg.Relay, target)
	if err == nil || errors.Is(err, ErrNoMatch) || errors.Is(err, ErrNoData) || ctx.Err() != nil {
		return data, err
	}

	log.Printf("cuescore: primary relay failed (%v), trying fallback", err)
	data, altErr := c.fetchVia(ctx, c.cfg.FallbackRelay, target)
	if altErr != nil && !errors.Is(altErr, ErrNoMatch) && !errors.Is(altErr, ErrNoData) {
		// Report the primary failure; the fallback was best-effort.
		return MatchData{}, err
	}
	return data, altErr
}

func (c *Client) fetchVia(ctx context.Context, relayTemplate, target string) (MatchData, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	relayURL := fmt.Sprintf(relayTemplate, target)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, relayURL, nil)
	if err != nil {
		return MatchData{}, fmt.Errorf("cuescore: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return MatchData{}, fmt.Errorf("cuescore: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return MatchData{}, fmt.Errorf("cuescore: relay returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return MatchData{}, fmt.Errorf("cuescore: read response: %w", err)
	}

	var parsed apiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return MatchData{}, fmt.Errorf("cuescore: unmarshal response: %w", err)
	}

	if parsed.Error == "NOMATCH" {
		return MatchData{}, ErrNoMatch
	}
	if parsed.Match == nil {
		return MatchData{}, ErrNoData
	}

	return MatchData{
		PlayerA: parsed.Match.PlayerA.Name,
		PlayerB: parsed.Match.PlayerB.Name,
		ScoreA:  parsed.Match.ScoreA,
		ScoreB:  parsed.Match.ScoreB,
	}, nil
}
