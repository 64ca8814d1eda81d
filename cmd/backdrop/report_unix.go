// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

//go:build !windows

package main

import (
	"fmt"

	"github.com/google/renameio/v2"
)

// writeReportFile replaces path atomically so a reader never sees a partial report.
func writeReportFile(path string, data []byte) error {
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	return nil
}
