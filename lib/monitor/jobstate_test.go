// Copyright (C) The Apache Software Foundation.
//
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	check "gopkg.in/check.v1"

	"github.com/apache/airavata-sub033/sdk/go/airavata"
)

var _ = check.Suite(&jobStateSuite{})

type jobStateSuite struct{}

func (s *jobStateSuite) TestValidJobStateTransition(c *check.C) {
	for _, trial := range []struct {
		prev airavata.JobState
		next airavata.JobState
		want bool
	}{
		// An unrecorded previous state admits anything known.
		{"", airavata.JobStateSubmitted, true},
		{"", airavata.JobStateComplete, true},
		{"UN_KNOWN", airavata.JobStateExecuting, true},
		// Forward transitions.
		{airavata.JobStateSubmitted, airavata.JobStateQueued, true},
		{airavata.JobStateQueued, airavata.JobStateExecuting, true},
		{airavata.JobStateExecuting, airavata.JobStateComplete, true},
		{airavata.JobStateSubmitted, airavata.JobStateFailed, true},
		// Duplicates and backward moves.
		{airavata.JobStateSubmitted, airavata.JobStateSubmitted, false},
		{airavata.JobStateExecuting, airavata.JobStateQueued, false},
		// A terminal previous state rejects everything.
		{airavata.JobStateComplete, airavata.JobStateSubmitted, false},
		{airavata.JobStateComplete, airavata.JobStateFailed, false},
		{airavata.JobStateCanceled, airavata.JobStateComplete, false},
		// Unknown next state is never valid.
		{airavata.JobStateSubmitted, "LOST", false},
	} {
		c.Check(ValidJobStateTransition(trial.prev, trial.next), check.Equals, trial.want,
			check.Commentf("%s -> %s", trial.prev, trial.next))
	}
}
