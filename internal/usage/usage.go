// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package usage queries the remote usage API for one account's quota
// dimensions and profile information, and fans out the same query across
// every account in the registry.
package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	usageEndpoint   = "https://api.anthropic.com/api/oauth/usage"
	profileEndpoint = "https://api.anthropic.com/api/oauth/profile"
	requestTimeout  = 10 * time.Second
)

// Dimension is one utilization window (5-hour or 7-day) at one moment.
type Dimension struct {
	Utilization float64    `json:"utilization"`
	ResetsAt    *time.Time `json:"resets_at,omitempty"`
}

// Snapshot is a usage reading for one token at one moment. Error is set
// instead of the dimensions when the query failed; an error-carrying
// snapshot is never selected by the scorer.
type Snapshot struct {
	FiveHour *Dimension `json:"five_hour,omitempty"`
	SevenDay *Dimension `json:"seven_day,omitempty"`
	Error    string     `json:"error,omitempty"`
}

// EffectiveUtilization returns max(session, weekly); a snapshot with
// neither dimension present normalizes to 100 (fully exhausted), per the
// invariant that missing data must never be treated as available.
func (s Snapshot) EffectiveUtilization() float64 {
	if s.FiveHour == nil && s.SevenDay == nil {
		return 100
	}
	best := 0.0
	if s.FiveHour != nil {
		best = math.Max(best, s.FiveHour.Utilization)
	} else {
		best = math.Max(best, 100)
	}
	if s.SevenDay != nil {
		best = math.Max(best, s.SevenDay.Utilization)
	} else {
		best = math.Max(best, 100)
	}
	return best
}

// EarliestReset returns the soonest non-nil reset timestamp across
// dimensions, or the zero value and false if neither is set.
func (s Snapshot) EarliestReset() (time.Time, bool) {
	var best time.Time
	found := false
	for _, d := range []*Dimension{s.FiveHour, s.SevenDay} {
		if d == nil || d.ResetsAt == nil {
			continue
		}
		if !found || d.ResetsAt.Before(best) {
			best = *d.ResetsAt
			found = true
		}
	}
	return best, found
}

// Profile is the subset of account profile fields the supervisor cares
// about.
type Profile struct {
	FullName    string `json:"full_name,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Email       string `json:"email,omitempty"`
}

// NormalizePercent maps a raw utilization value onto [0,100]. Values in
// [0,1] are treated as a fraction, multiplied by 100 and rounded; values in
// (1,100] are rounded; everything else (negative, NaN, >100) normalizes to 0.
func NormalizePercent(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) || x < 0 || x > 100 {
		return 0
	}
	if x <= 1 {
		return math.Round(x * 100)
	}
	return math.Round(x)
}

// nestedResponse is the current usage response shape.
type nestedResponse struct {
	FiveHour *rawDimension `json:"five_hour"`
	SevenDay *rawDimension `json:"seven_day"`
}

type rawDimension struct {
	Utilization json.Number `json:"utilization"`
	ResetsAt    *time.Time  `json:"resets_at"`
}

// flatResponse is the legacy usage response shape.
type flatResponse struct {
	FiveHourUtilization json.Number `json:"five_hour_utilization"`
	SevenDayUtilization json.Number `json:"seven_day_utilization"`
	FiveHourResetAt     *time.Time  `json:"five_hour_reset_at"`
	SevenDayResetAt     *time.Time  `json:"seven_day_reset_at"`
}

// Client queries the remote usage API.
type Client struct {
	HTTP *http.Client
}

// NewClient returns a Client using a default HTTP client.
func NewClient() *Client {
	return &Client{HTTP: &http.Client{}}
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

// CheckUsage queries the usage endpoint for one bearer token.
func (c *Client) CheckUsage(ctx context.Context, token string) Snapshot {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, usageEndpoint, nil)
	if err != nil {
		return Snapshot{Error: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Snapshot{Error: "timeout"}
		}
		return Snapshot{Error: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Snapshot{Error: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Snapshot{Error: err.Error()}
	}
	return parseUsageBody(body)
}

// parseUsageBody accepts either the nested or the legacy flat response
// shape via an explicit union handler. An unrecognized shape normalizes to
// zero utilization with no error, so the next poll may succeed.
func parseUsageBody(body []byte) Snapshot {
	var nested nestedResponse
	if err := json.Unmarshal(body, &nested); err == nil && (nested.FiveHour != nil || nested.SevenDay != nil) {
		return Snapshot{
			FiveHour: dimensionFromRaw(nested.FiveHour),
			SevenDay: dimensionFromRaw(nested.SevenDay),
		}
	}

	var flat flatResponse
	if err := json.Unmarshal(body, &flat); err == nil {
		return Snapshot{
			FiveHour: &Dimension{Utilization: NormalizePercent(numberOrZero(flat.FiveHourUtilization)), ResetsAt: flat.FiveHourResetAt},
			SevenDay: &Dimension{Utilization: NormalizePercent(numberOrZero(flat.SevenDayUtilization)), ResetsAt: flat.SevenDayResetAt},
		}
	}

	return Snapshot{
		FiveHour: &Dimension{Utilization: 0},
		SevenDay: &Dimension{Utilization: 0},
	}
}

func dimensionFromRaw(d *rawDimension) *Dimension {
	if d == nil {
		return &Dimension{Utilization: 0}
	}
	return &Dimension{Utilization: NormalizePercent(numberOrZero(d.Utilization)), ResetsAt: d.ResetsAt}
}

func numberOrZero(n json.Number) float64 {
	if n == "" {
		return 0
	}
	v, err := n.Float64()
	if err != nil {
		return 0
	}
	return v
}

// FetchProfile queries the profile endpoint for one bearer token.
func (c *Client) FetchProfile(ctx context.Context, token string) (Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, profileEndpoint, nil)
	if err != nil {
		return Profile{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Profile{}, fmt.Errorf("timeout")
		}
		return Profile{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Profile{}, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	var wrapper struct {
		Account Profile `json:"account"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wrapper); err != nil {
		return Profile{}, err
	}
	return wrapper.Account, nil
}

// AccountToken pairs an account name with the bearer token to query and
// the usage snapshot eventually filled in.
type AccountToken struct {
	Name     string
	Token    string
	NoToken  bool
	Snapshot Snapshot
}

// CheckAll fans out CheckUsage across every account concurrently, and
// returns the results in the same order as the input.
func (c *Client) CheckAll(ctx context.Context, accounts []AccountToken) []AccountToken {
	out := make([]AccountToken, len(accounts))
	copy(out, accounts)

	g, gctx := errgroup.WithContext(ctx)
	for i := range out {
		i := i
		if out[i].NoToken {
			out[i].Snapshot = Snapshot{Error: "no_credentials"}
			continue
		}
		g.Go(func() error {
			out[i].Snapshot = c.CheckUsage(gctx, out[i].Token)
			return nil
		})
	}
	_ = g.Wait()
	return out
}
