// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package playback

import "time"

// message is anything the loop goroutine handles.
type message interface{}

type mediaMsg struct {
	slot int
	ev   Event
}

type visibilityMsg struct {
	visible bool
}

type fadeMsg struct {
	fade time.Duration
}

type watchdogTickMsg struct {
	gen uint64
}

type pollTickMsg struct {
	gen uint64
}

type samplePurpose int

const (
	samplePoll samplePurpose = iota
	sampleWatchdog
	sampleVisibility
)

type sampleMsg struct {
	purpose samplePurpose
	slot    int
	status  Status
	err     error
}

type switchResultMsg struct {
	seq uint64
	ok  bool
	err error
}

type cleanupDueMsg struct {
	seq uint64
}

type cleanupDoneMsg struct {
	seq uint64
}

type releaseDueMsg struct {
	seq uint64
}

type recoveryOutcome string

const (
	outcomeSoft       recoveryOutcome = "soft"
	outcomeHard       recoveryOutcome = "hard"
	outcomeHardFailed recoveryOutcome = "hard_failed"
)

type recoveryResultMsg struct {
	seq     uint64
	slot    int
	reason  string
	outcome recoveryOutcome
	status  Status
}

type resumeResultMsg struct {
	slot   int
	reason string
	ok     bool
}
