// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package usage

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePercent(t *testing.T) {
	assert.Equal(t, 0.0, NormalizePercent(0))
	assert.Equal(t, 100.0, NormalizePercent(1))
	assert.Equal(t, 50.0, NormalizePercent(0.5))
	assert.Equal(t, 73.0, NormalizePercent(73))
	assert.Equal(t, 0.0, NormalizePercent(-1))
	assert.Equal(t, 0.0, NormalizePercent(150))
}

func TestEffectiveUtilizationMax(t *testing.T) {
	s := Snapshot{
		FiveHour: &Dimension{Utilization: 95},
		SevenDay: &Dimension{Utilization: 80},
	}
	assert.Equal(t, 95.0, s.EffectiveUtilization())
}

func TestEffectiveUtilizationMissingDimensionIsExhausted(t *testing.T) {
	s := Snapshot{FiveHour: &Dimension{Utilization: 10}}
	assert.Equal(t, 100.0, s.EffectiveUtilization())

	empty := Snapshot{}
	assert.Equal(t, 100.0, empty.EffectiveUtilization())
}

func TestParseUsageBodyNestedShape(t *testing.T) {
	body := []byte(`{"five_hour":{"utilization":0.8,"resets_at":"2026-07-30T12:00:00Z"},"seven_day":{"utilization":40}}`)
	snap := parseUsageBody(body)
	require.NotNil(t, snap.FiveHour)
	assert.Equal(t, 80.0, snap.FiveHour.Utilization)
	require.NotNil(t, snap.FiveHour.ResetsAt)
	assert.Equal(t, 40.0, snap.SevenDay.Utilization)
}

func TestParseUsageBodyFlatShape(t *testing.T) {
	body := []byte(`{"five_hour_utilization":95,"seven_day_utilization":0.2}`)
	snap := parseUsageBody(body)
	require.NotNil(t, snap.FiveHour)
	assert.Equal(t, 95.0, snap.FiveHour.Utilization)
	assert.Equal(t, 20.0, snap.SevenDay.Utilization)
}

func TestParseUsageBodyUnknownShapeIsZeroNoError(t *testing.T) {
	snap := parseUsageBody([]byte(`{"unexpected":true}`))
	assert.Empty(t, snap.Error)
	assert.Equal(t, 0.0, snap.FiveHour.Utilization)
}

func TestCheckAllPreservesOrder(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(map[string]any{
			"five_hour_utilization": 10,
			"seven_day_utilization": 5,
		})
	}))
	defer srv.Close()

	c := &Client{HTTP: srv.Client()}
	accounts := []AccountToken{
		{Name: "a", Token: "tok-a"},
		{Name: "b", NoToken: true},
		{Name: "c", Token: "tok-c"},
	}
	out := c.CheckAll(context.Background(), accounts)
	require.Len(t, out, 3)
	assert.Equal(t, "a", out[0].Name)
	assert.Equal(t, "b", out[1].Name)
	assert.Equal(t, "c", out[2].Name)
	assert.Equal(t, "no_credentials", out[1].Snapshot.Error)
}

func TestCacheExpiry(t *testing.T) {
	cache := NewCache(10 * time.Millisecond)
	cache.Set("a", Snapshot{FiveHour: &Dimension{Utilization: 5}})

	snap, ok := cache.Get("a")
	require.True(t, ok)
	assert.Equal(t, 5.0, snap.FiveHour.Utilization)

	time.Sleep(20 * time.Millisecond)
	_, ok = cache.Get("a")
	assert.False(t, ok)
}
