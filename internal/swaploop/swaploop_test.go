// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package swaploop

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/hoffctl/hoff/internal/channelmap"
	"github.com/hoffctl/hoff/internal/child"
	"github.com/hoffctl/hoff/internal/credstore"
	"github.com/hoffctl/hoff/internal/hook"
	"github.com/hoffctl/hoff/internal/registry"
	"github.com/hoffctl/hoff/internal/usage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	results []child.Result
	calls   []string // profile dirs in call order, one per RunOnce
	i       int
}

func (f *fakeRunner) RunOnce(_ context.Context, args []string, opts child.Options) (child.Result, error) {
	f.calls = append(f.calls, opts.ProfileDir)
	r := f.results[f.i]
	if f.i < len(f.results)-1 {
		f.i++
	}
	return r, nil
}

type fakeCreds struct{}

func (fakeCreds) Read(profileDir string) credstore.Blob {
	return credstore.Blob{AccessToken: "tok-" + profileDir, ExpiresAt: time.Now().Add(time.Hour).UnixMilli()}
}
func (fakeCreds) Refresh(ctx context.Context, profileDir string) (credstore.Blob, error) {
	return credstore.Blob{AccessToken: "tok-" + profileDir, ExpiresAt: time.Now().Add(time.Hour).UnixMilli()}, nil
}

type fakeUsage struct {
	byName map[string]usage.Snapshot
}

func (f fakeUsage) CheckAll(_ context.Context, accounts []usage.AccountToken) []usage.AccountToken {
	out := make([]usage.AccountToken, len(accounts))
	copy(out, accounts)
	for i := range out {
		if snap, ok := f.byName[out[i].Name]; ok {
			out[i].Snapshot = snap
		}
	}
	return out
}

type fakeNotifier struct{ kinds []hook.Kind }

func (f *fakeNotifier) Dispatch(kind hook.Kind, ctx hook.Context) error {
	f.kinds = append(f.kinds, kind)
	return nil
}

func dim(pct float64) *usage.Dimension {
	return &usage.Dimension{Utilization: pct}
}

func setupRegistry(t *testing.T, accounts ...registry.Account) *registry.Registry {
	t.Helper()
	r := registry.New(filepath.Join(t.TempDir(), "accounts.json"))
	for _, a := range accounts {
		require.NoError(t, r.Add(a))
	}
	return r
}

func TestRunSwapsToLowestUtilizationOnRateLimit(t *testing.T) {
	reg := setupRegistry(t,
		registry.Account{Name: "a", ProfileDir: "/profiles/a"},
		registry.Account{Name: "b", ProfileDir: "/profiles/b"},
	)

	runner := &fakeRunner{results: []child.Result{
		{RateLimited: true, SessionID: "11111111-1111-4111-8111-111111111111"},
		{ExitedCleanly: true, ExitCode: 0},
	}}

	loop := &Loop{
		Registry:   reg,
		Creds:      fakeCreds{},
		Usage:      fakeUsage{byName: map[string]usage.Snapshot{"a": {FiveHour: dim(95), SevenDay: dim(80)}, "b": {FiveHour: dim(20), SevenDay: dim(15)}}},
		Supervisor: runner,
		Channels:   channelmap.New(filepath.Join(t.TempDir(), "channel-map.json")),
		CWD:        "/tmp/proj",
	}

	exitCode, err := loop.Run(context.Background(), "a", []string{})
	require.NoError(t, err)
	assert.Equal(t, 0, exitCode)
	require.Len(t, runner.calls, 2)
	assert.Equal(t, "/profiles/a", runner.calls[0])
	assert.Equal(t, "/profiles/b", runner.calls[1])
}

func TestRunMaxSwapsExhausted(t *testing.T) {
	reg := setupRegistry(t,
		registry.Account{Name: "a", ProfileDir: "/profiles/a"},
		registry.Account{Name: "b", ProfileDir: "/profiles/b"},
		registry.Account{Name: "c", ProfileDir: "/profiles/c"},
		registry.Account{Name: "d", ProfileDir: "/profiles/d"},
	)

	runner := &fakeRunner{results: []child.Result{
		{RateLimited: true},
		{RateLimited: true},
		{RateLimited: true},
	}}

	loop := &Loop{
		Registry: reg,
		Creds:    fakeCreds{},
		Usage: fakeUsage{byName: map[string]usage.Snapshot{
			"a": {FiveHour: dim(50), SevenDay: dim(50)}, "b": {FiveHour: dim(40), SevenDay: dim(40)},
			"c": {FiveHour: dim(30), SevenDay: dim(30)}, "d": {FiveHour: dim(20), SevenDay: dim(20)},
		}},
		Supervisor: runner,
		Channels:   channelmap.New(filepath.Join(t.TempDir(), "channel-map.json")),
		CWD:        "/tmp/proj",
	}

	_, err := loop.RunWithOptions(context.Background(), "a", []string{}, Options{MaxSwaps: 2})
	assert.ErrorIs(t, err, ErrMaxSwapsReached)
	assert.Len(t, runner.calls, 3)
}

func TestRunSleepsUntilResetWhenAllExhausted(t *testing.T) {
	reg := setupRegistry(t,
		registry.Account{Name: "a", ProfileDir: "/profiles/a"},
		registry.Account{Name: "b", ProfileDir: "/profiles/b"},
	)

	reset := time.Now().Add(45 * time.Minute)
	runner := &fakeRunner{results: []child.Result{
		{RateLimited: true},
		{ExitedCleanly: true, ExitCode: 0},
	}}

	var slept time.Duration
	loop := &Loop{
		Registry: reg,
		Creds:    fakeCreds{},
		Usage: fakeUsage{byName: map[string]usage.Snapshot{
			"a": {FiveHour: &usage.Dimension{Utilization: 99, ResetsAt: &reset}},
			"b": {FiveHour: &usage.Dimension{Utilization: 99.5, ResetsAt: &reset}},
		}},
		Supervisor: runner,
		Channels:   channelmap.New(filepath.Join(t.TempDir(), "channel-map.json")),
		CWD:        "/tmp/proj",
		Sleep: func(ctx context.Context, d time.Duration) error {
			slept = d
			return nil
		},
	}

	_, err := loop.Run(context.Background(), "a", []string{})
	require.NoError(t, err)
	assert.True(t, slept > 0)
	assert.True(t, slept <= 45*time.Minute+time.Second)
}

func TestRunNotifiesInRemoteMode(t *testing.T) {
	reg := setupRegistry(t,
		registry.Account{Name: "a", ProfileDir: "/profiles/a"},
		registry.Account{Name: "b", ProfileDir: "/profiles/b"},
	)

	runner := &fakeRunner{results: []child.Result{
		{RateLimited: true},
		{ExitedCleanly: true, ExitCode: 0},
	}}
	notifier := &fakeNotifier{}

	loop := &Loop{
		Registry:   reg,
		Creds:      fakeCreds{},
		Usage:      fakeUsage{byName: map[string]usage.Snapshot{"a": {FiveHour: dim(95), SevenDay: dim(80)}, "b": {FiveHour: dim(20), SevenDay: dim(15)}}},
		Supervisor: runner,
		Channels:   channelmap.New(filepath.Join(t.TempDir(), "channel-map.json")),
		CWD:        "/tmp/proj",
		Notifier:   notifier,
	}

	_, err := loop.RunWithOptions(context.Background(), "a", []string{}, Options{RemoteMode: true})
	require.NoError(t, err)
	assert.Contains(t, notifier.kinds, hook.AccountSwitch)
}

func TestBuildResumeArgsIsIdempotentAcrossSwaps(t *testing.T) {
	first := buildResumeArgs([]string{"--verbose"}, "id1", false)
	second := buildResumeArgs(first, "id2", false)

	resumeCount := 0
	var value string
	for i, a := range second {
		if a == "--resume" {
			resumeCount++
			value = second[i+1]
		}
	}
	assert.Equal(t, 1, resumeCount)
	assert.Equal(t, "id2", value)
}

func TestBuildResumeArgsOnContinuationDropsPositionalsAndAppendsPrompt(t *testing.T) {
	args := buildResumeArgs([]string{"some prompt text", "--verbose"}, "id1", true)
	assert.Equal(t, []string{"--resume", "id1", "--verbose", "Continue."}, args)
}

func TestBuildResumeArgsWithoutSessionOmitsResumeFlag(t *testing.T) {
	args := buildResumeArgs([]string{"--verbose"}, "", false)
	assert.Equal(t, []string{"--verbose"}, args)
}
