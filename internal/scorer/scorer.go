// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package scorer picks the best account to run the child on, given each
// account's current usage snapshot, under one of two selection policies.
package scorer

import (
	"fmt"
	"sort"

	"github.com/hoffctl/hoff/internal/usage"
)

// exhaustedThreshold is the effective-utilization cutoff at or above which
// an account is treated as exhausted by the priority policy.
const exhaustedThreshold = 98.0

// Candidate is one account under consideration, with its current usage.
type Candidate struct {
	Name     string
	Token    string
	HasToken bool
	Priority *int
	Snapshot usage.Snapshot
}

// Options controls which selection policy PickBest applies.
type Options struct {
	UsePriority bool
}

// Result is the outcome of a successful selection.
type Result struct {
	Account Candidate
	Reason  string
}

// filter drops accounts with no token, an errored snapshot, or the
// excluded name.
func filter(candidates []Candidate, exclude string) []Candidate {
	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Name == exclude {
			continue
		}
		if !c.HasToken {
			continue
		}
		if c.Snapshot.Error != "" {
			continue
		}
		out = append(out, c)
	}
	return out
}

// PickBest selects an account per the configured policy, or returns false
// if no eligible candidate remains after filtering.
func PickBest(candidates []Candidate, exclude string, opts Options) (Result, bool) {
	eligible := filter(candidates, exclude)
	if len(eligible) == 0 {
		return Result{}, false
	}

	if opts.UsePriority {
		return pickByPriority(eligible), true
	}
	return pickByLowestUtilization(eligible), true
}

// PickByPriority is a convenience wrapper that always uses the priority
// policy.
func PickByPriority(candidates []Candidate, exclude string) (Result, bool) {
	return PickBest(candidates, exclude, Options{UsePriority: true})
}

func pickByLowestUtilization(candidates []Candidate) Result {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Snapshot.EffectiveUtilization() < candidates[j].Snapshot.EffectiveUtilization()
	})
	best := candidates[0]
	return Result{
		Account: best,
		Reason:  utilizationReason(best),
	}
}

func pickByPriority(candidates []Candidate) Result {
	nonExhausted := make([]Candidate, 0, len(candidates))
	exhausted := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Snapshot.EffectiveUtilization() >= exhaustedThreshold {
			exhausted = append(exhausted, c)
		} else {
			nonExhausted = append(nonExhausted, c)
		}
	}

	sortByPriority(nonExhausted)
	sortByPriority(exhausted)

	var best Candidate
	if len(nonExhausted) > 0 {
		best = nonExhausted[0]
	} else {
		best = exhausted[0]
	}

	reason := utilizationReason(best)
	if best.Priority != nil {
		reason = fmt.Sprintf("%s, priority %d", reason, *best.Priority)
	}
	return Result{Account: best, Reason: reason}
}

// sortByPriority sorts in place: lower priority wins (absent priority is
// +∞), ties broken by lower utilization, remaining ties by stable input
// order.
func sortByPriority(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		pi, pj := priorityOrInfinite(candidates[i]), priorityOrInfinite(candidates[j])
		if pi != pj {
			return pi < pj
		}
		return candidates[i].Snapshot.EffectiveUtilization() < candidates[j].Snapshot.EffectiveUtilization()
	})
}

func priorityOrInfinite(c Candidate) int {
	if c.Priority == nil {
		return int(^uint(0) >> 1) // max int, stands in for +∞
	}
	return *c.Priority
}

func utilizationReason(c Candidate) string {
	session, weekly := 0.0, 0.0
	if c.Snapshot.FiveHour != nil {
		session = c.Snapshot.FiveHour.Utilization
	}
	if c.Snapshot.SevenDay != nil {
		weekly = c.Snapshot.SevenDay.Utilization
	}
	return fmt.Sprintf("%s: session %.0f%%, weekly %.0f%%", c.Name, session, weekly)
}
