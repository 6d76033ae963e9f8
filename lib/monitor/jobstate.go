// Copyright (C) The Apache Software Foundation.
//
// SPDX-License-Identifier: Apache-2.0

// Package monitor reacts to asynchronous status events: it validates
// and applies job state changes, drives process and experiment state
// from them, and launches the follow-up workflows (post-execution,
// data parsing).
package monitor

import "github.com/apache/airavata-sub033/sdk/go/airavata"

// jobStateRank orders job states along the forward execution path.
// Terminal states share the highest rank so no transition between
// them (or out of them) is ever legal.
var jobStateRank = map[airavata.JobState]int{
	airavata.JobStateSubmitted: 1,
	airavata.JobStateQueued:    2,
	airavata.JobStateExecuting: 3,
	airavata.JobStateComplete:  4,
	airavata.JobStateFailed:    4,
	airavata.JobStateCanceled:  4,
}

// ValidJobStateTransition reports whether moving from prev to next is
// a legal forward transition. Unknown previous state (nothing
// recorded yet) admits any next state; duplicates, regressions, and
// transitions out of a terminal state are rejected. This is the core
// defense against duplicated and re-ordered bus deliveries.
func ValidJobStateTransition(prev, next airavata.JobState) bool {
	nextRank, known := jobStateRank[next]
	if !known {
		return false
	}
	prevRank, known := jobStateRank[prev]
	if !known {
		return true
	}
	if prev.Terminal() {
		return false
	}
	return nextRank > prevRank
}
