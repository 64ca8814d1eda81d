// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package playback implements the dual-buffer playback controller that keeps a
// looping background video seamless and alive.
//
// Two interchangeable slots take turns in the foreground. The crossfade
// scheduler starts the standby slot shortly before the active one ends, the
// watchdog samples the active slot for silent stalls, and the recovery strategy
// escalates from a soft resume to a reload-and-reseek with exponential backoff.
//
// Every trigger (media events, timers, visibility changes, task results) is
// serialized through a single inbox and handled by one goroutine, so the
// controller state needs no locking. Blocking media calls run in tasks bound to
// the controller lifetime and report back as messages.
package playback
