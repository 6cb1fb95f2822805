// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package swaploop orchestrates the supervisor's account-selection,
// spawn, rate-limit-detection, kill, migrate, and resume cycle. It is the
// one place that ties the registry, credential store, usage client,
// scorer, session store, child supervisor, and channel map together.
package swaploop

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hoffctl/hoff/internal/channelmap"
	"github.com/hoffctl/hoff/internal/child"
	"github.com/hoffctl/hoff/internal/credstore"
	"github.com/hoffctl/hoff/internal/hook"
	"github.com/hoffctl/hoff/internal/registry"
	"github.com/hoffctl/hoff/internal/scorer"
	"github.com/hoffctl/hoff/internal/sessionstore"
	"github.com/hoffctl/hoff/internal/usage"
)

// continuationPrompt is appended to resume args on a rate-limit swap so
// the child wakes and proceeds without re-prompting the user.
const continuationPrompt = "Continue."

// sleepCap bounds how long sleep-until-reset ever waits, regardless of
// how far away the earliest reset actually is.
const sleepCap = 6 * time.Hour

// interruptedExitCode is returned when sleep-until-reset is cut short by
// SIGINT/SIGTERM or context cancellation.
const interruptedExitCode = 130

var (
	// ErrMaxSwapsReached is returned when the loop has exhausted its swap
	// budget without the child exiting cleanly.
	ErrMaxSwapsReached = errors.New("max_swaps_reached")
	// ErrNoAlternativeAccounts is returned when every account is
	// exhausted, unauthenticated, or excluded.
	ErrNoAlternativeAccounts = errors.New("no_alternative_accounts")
	// ErrMigrationFailed names the migration-failure kind. RunWithOptions
	// does not return it: a migration failure is logged and the loop
	// proceeds without resume.
	ErrMigrationFailed = errors.New("migration_failed")
)

// Options configures one invocation of the loop.
type Options struct {
	// MaxSwaps bounds the number of rate-limit swaps. Zero selects the
	// default of max(5, 2*len(accounts)).
	MaxSwaps int
	// RemoteMode enables chat notifications and remote-mode stale-channel
	// cleanup. The loop performs no interactive re-authentication in
	// either mode: an account whose credential read or refresh fails is
	// simply left out of the candidate set.
	RemoteMode bool
	// UsePriority selects the priority-with-exhaustion-threshold policy
	// instead of the default lowest-utilization policy.
	UsePriority bool
}

// Notifier posts a lifecycle notice to the chat system. *hook.Dispatcher
// satisfies this directly.
type Notifier interface {
	Dispatch(kind hook.Kind, ctx hook.Context) error
}

// ChildRunner runs one child process to completion or rate-limit kill.
// *child.Supervisor satisfies this; tests substitute a fake.
type ChildRunner interface {
	RunOnce(ctx context.Context, args []string, opts child.Options) (child.Result, error)
}

// CredentialSource reads and refreshes per-profile credentials.
// *credstore.Store satisfies this; tests substitute a fake.
type CredentialSource interface {
	Read(profileDir string) credstore.Blob
	Refresh(ctx context.Context, profileDir string) (credstore.Blob, error)
}

// UsageChecker fans a usage query out across accounts. *usage.Client
// satisfies this; tests substitute a fake.
type UsageChecker interface {
	CheckAll(ctx context.Context, accounts []usage.AccountToken) []usage.AccountToken
}

// Loop wires every collaborator the swap algorithm needs.
type Loop struct {
	Registry   *registry.Registry
	Creds      CredentialSource
	Usage      UsageChecker
	Supervisor ChildRunner
	Channels   *channelmap.Map
	Notifier   Notifier // optional; only consulted when Options.RemoteMode

	// CWD is the working directory new sessions are created under; it is
	// what session lookup and migration hash against.
	CWD string
	// TmuxSession identifies the multiplexer session this invocation runs
	// in, for remote-mode stale-channel cleanup and channel reuse.
	TmuxSession string
	// Project names the channel the hook entrypoint would create.
	Project string

	// Now and Sleep are overridable for tests; Sleep must return
	// context.Canceled (or any error) if interrupted before d elapses.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

func (l *Loop) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

func (l *Loop) sleep(ctx context.Context, d time.Duration) error {
	if l.Sleep != nil {
		return l.Sleep(ctx, d)
	}
	return interruptibleSleep(ctx, d)
}

// interruptibleSleep waits for d to elapse, ctx to be cancelled, or
// SIGINT/SIGTERM, whichever comes first.
func interruptibleSleep(ctx context.Context, d time.Duration) error {
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-sigCtx.Done():
		return sigCtx.Err()
	}
}

// state is the loop's in-memory record, mutated only by Run.
type state struct {
	account   string
	swapCount int
	sessionID string
	args      []string
}

// Run executes the swap loop for one supervisor invocation: select,
// spawn, detect, kill, migrate, resume, repeat. It returns the process
// exit code the supervisor should propagate.
func (l *Loop) Run(ctx context.Context, initialAccount string, args []string) (int, error) {
	return l.RunWithOptions(ctx, initialAccount, args, Options{})
}

// RunWithOptions is Run with explicit Options.
func (l *Loop) RunWithOptions(ctx context.Context, initialAccount string, args []string, opts Options) (int, error) {
	accounts, err := l.Registry.Load()
	if err != nil {
		return 1, fmt.Errorf("load registry: %w", err)
	}

	maxSwaps := opts.MaxSwaps
	if maxSwaps <= 0 {
		maxSwaps = defaultMaxSwaps(len(accounts))
	}

	st := state{
		account:   initialAccount,
		sessionID: extractResumeID(args),
		args:      args,
	}

	if opts.RemoteMode && l.TmuxSession != "" {
		if err := l.deactivateStaleChannel(); err != nil {
			return 1, fmt.Errorf("deactivate stale channel: %w", err)
		}
	}

	for st.swapCount <= maxSwaps {
		profileDir, err := l.profileDir(accounts, st.account)
		if err != nil {
			return 1, err
		}

		result, err := l.Supervisor.RunOnce(ctx, st.args, child.Options{
			ProfileDir: profileDir,
			RemoteMode: opts.RemoteMode,
		})
		if err != nil {
			return 1, fmt.Errorf("run child: %w", err)
		}

		if !result.RateLimited {
			if result.ExitedCleanly {
				return result.ExitCode, nil
			}
			if result.ExitCode == 0 {
				return 1, nil
			}
			return result.ExitCode, nil
		}

		st.swapCount++
		if st.swapCount > maxSwaps {
			return 1, ErrMaxSwapsReached
		}

		sessionID := result.SessionID
		if sessionID == "" {
			if found, ok, findErr := sessionstore.FindLatestInProfile(profileDir, l.CWD); findErr == nil && ok {
				sessionID = found.SessionID
			}
		}

		candidates, err := l.candidates(ctx, accounts)
		if err != nil {
			return 1, err
		}

		best, ok := l.pick(candidates, st.account, opts)
		if !ok {
			return 1, ErrNoAlternativeAccounts
		}

		if best.Account.Snapshot.EffectiveUtilization() >= sleepThreshold {
			slept, wakeErr := l.sleepUntilReset(ctx, candidates, opts)
			if wakeErr != nil {
				return interruptedExitCode, wakeErr
			}
			if slept {
				candidates, err = l.candidates(ctx, accounts)
				if err != nil {
					return 1, err
				}
				best, ok = l.pick(candidates, "", opts)
				if !ok {
					return 1, ErrNoAlternativeAccounts
				}
			}
		}

		if opts.RemoteMode && l.Notifier != nil {
			_ = l.Notifier.Dispatch(hook.AccountSwitch, hook.Context{
				SessionID: st.sessionID,
				Extra:     map[string]string{"reason": fmt.Sprintf("%s -> %s (%s)", st.account, best.Account.Name, best.Reason)},
			})
		}

		newProfileDir, err := l.profileDir(accounts, best.Account.Name)
		if err != nil {
			return 1, err
		}

		if sessionID != "" {
			hash, hashErr := sessionstore.CWDHash(l.CWD)
			if hashErr == nil {
				if migErr := sessionstore.Migrate(profileDir, newProfileDir, hash, sessionID); migErr != nil {
					log.Printf("[hoff] migrate session %s from %s to %s failed: %v", sessionID, st.account, best.Account.Name, migErr)
					sessionID = ""
				} else {
					log.Printf("[hoff] migrated session %s from %s to %s", sessionID, st.account, best.Account.Name)
				}
			} else {
				log.Printf("[hoff] hash cwd for migration failed: %v", hashErr)
				sessionID = ""
			}
		}

		log.Printf("[hoff] swap %s -> %s (%s)", st.account, best.Account.Name, best.Reason)

		st.args = buildResumeArgs(st.args, sessionID, true)
		st.sessionID = sessionID
		st.account = best.Account.Name
	}

	return 1, ErrMaxSwapsReached
}

// sleepThreshold is the effective-utilization percentage at or above
// which the loop stops cycling accounts and sleeps until a reset instead.
const sleepThreshold = 99.0

// sleepUntilReset sleeps until the earliest reset across all candidates
// (clamped to sleepCap), notifying the chat relay first in remote mode.
// It returns slept=true if a sleep actually occurred.
func (l *Loop) sleepUntilReset(ctx context.Context, candidates []scorer.Candidate, opts Options) (bool, error) {
	earliest, ok := earliestReset(candidates, l.now())
	if !ok || earliest <= 0 {
		return false, nil
	}
	if earliest > sleepCap {
		earliest = sleepCap
	}

	wakeAt := l.now().Add(earliest)
	log.Printf("[hoff] all accounts exhausted; sleeping until %s", wakeAt.Format(time.RFC3339))

	if opts.RemoteMode && l.Notifier != nil {
		_ = l.Notifier.Dispatch(hook.SleepUntilReset, hook.Context{
			Extra: map[string]string{"wake_at": wakeAt.Format(time.RFC3339)},
		})
	}

	if err := l.sleep(ctx, earliest); err != nil {
		return false, err
	}

	log.Printf("[hoff] woke from sleep")

	if opts.RemoteMode && l.Notifier != nil {
		_ = l.Notifier.Dispatch(hook.SleepWake, hook.Context{})
	}
	return true, nil
}

// earliestReset returns the soonest reset across all candidate snapshots,
// as a duration from now.
func earliestReset(candidates []scorer.Candidate, now time.Time) (time.Duration, bool) {
	var best time.Time
	found := false
	for _, c := range candidates {
		t, ok := c.Snapshot.EarliestReset()
		if !ok {
			continue
		}
		if !found || t.Before(best) {
			best = t
			found = true
		}
	}
	if !found {
		return 0, false
	}
	return best.Sub(now), true
}

func (l *Loop) pick(candidates []scorer.Candidate, exclude string, opts Options) (scorer.Result, bool) {
	return scorer.PickBest(candidates, exclude, scorer.Options{UsePriority: opts.UsePriority})
}

// candidates builds one scorer.Candidate per registered account,
// fetching a fresh credential (refreshing if expired) and usage snapshot
// for each.
func (l *Loop) candidates(ctx context.Context, accounts []registry.Account) ([]scorer.Candidate, error) {
	tokens := make([]usage.AccountToken, len(accounts))
	priorities := make([]*int, len(accounts))

	for i, a := range accounts {
		priorities[i] = a.Priority

		blob := l.Creds.Read(a.ProfileDir)
		if blob.Error != "" {
			tokens[i] = usage.AccountToken{Name: a.Name, NoToken: true}
			continue
		}
		if credstore.IsExpired(blob) {
			refreshed, err := l.Creds.Refresh(ctx, a.ProfileDir)
			if err != nil {
				tokens[i] = usage.AccountToken{Name: a.Name, NoToken: true}
				continue
			}
			blob = refreshed
		}
		tokens[i] = usage.AccountToken{Name: a.Name, Token: blob.AccessToken}
	}

	results := l.Usage.CheckAll(ctx, tokens)

	candidates := make([]scorer.Candidate, len(results))
	for i, r := range results {
		candidates[i] = scorer.Candidate{
			Name:     r.Name,
			Token:    r.Token,
			HasToken: !r.NoToken,
			Priority: priorities[i],
			Snapshot: r.Snapshot,
		}
	}
	return candidates, nil
}

func (l *Loop) profileDir(accounts []registry.Account, name string) (string, error) {
	for _, a := range accounts {
		if a.Name == name {
			return a.ProfileDir, nil
		}
	}
	return "", fmt.Errorf("unknown account %q", name)
}

func (l *Loop) deactivateStaleChannel() error {
	return l.Channels.DeactivateByTmuxSession(l.TmuxSession)
}

func defaultMaxSwaps(numAccounts int) int {
	if n := 2 * numAccounts; n > 5 {
		return n
	}
	return 5
}

// extractResumeID returns the value of an existing --resume/-r flag, if
// any.
func extractResumeID(args []string) string {
	for i, a := range args {
		if (a == "--resume" || a == "-r") && i+1 < len(args) {
			return args[i+1]
		}
		if strings.HasPrefix(a, "--resume=") {
			return strings.TrimPrefix(a, "--resume=")
		}
	}
	return ""
}

// buildResumeArgs strips any existing --resume/-r flag (and its value)
// from args, then, if sessionID is non-empty, prepends a fresh one. On a
// rate-limit swap (continuation=true) it also strips every positional
// argument and appends a fixed continuation prompt, so the child resumes
// without expecting the user to repeat the original request.
func buildResumeArgs(args []string, sessionID string, continuation bool) []string {
	stripped := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "--resume" || a == "-r":
			i++ // also skip its value
		case strings.HasPrefix(a, "--resume="):
		case continuation && !strings.HasPrefix(a, "-"):
			// positional argument: dropped on a continuation swap
		default:
			stripped = append(stripped, a)
		}
	}

	out := stripped
	if sessionID != "" {
		out = append([]string{"--resume", sessionID}, out...)
	}
	if continuation {
		out = append(out, continuationPrompt)
	}
	return out
}
