// ///////////////////////////////////////////////////////////////////////////
//
// # recode - Latin-1 to UTF-8 table repair
//
// Copyright (C) 2023 - 2026, pgEdge (https://www.pgedge.com/)
//
// This software is released under the PostgreSQL License:
// https://opensource.org/license/postgresql
//
// ///////////////////////////////////////////////////////////////////////////

package recode

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pgedge/recode/pkg/logger"
	"github.com/pgedge/recode/pkg/taskstore"
	"github.com/pgedge/recode/pkg/types"
)

type RunReport struct {
	RunID          string               `json:"run_id"`
	Mode           string               `json:"mode"`
	Timestamp      string               `json:"time_stamp"`
	SuppliedArgs   map[string]any       `json:"supplied_args"`
	Connection     string               `json:"connection"`
	UniqueKey      []string             `json:"unique_key,omitempty"`
	QueryLog       string               `json:"query_log,omitempty"`
	Skipped        bool                 `json:"skipped,omitempty"`
	Stats          reportStats          `json:"stats"`
	WriteFailures  []types.WriteFailure `json:"write_failures,omitempty"`
	Error          string               `json:"error,omitempty"`
	RunTimeSeconds float64              `json:"run_time,omitempty"`
}

type reportStats struct {
	StatementsBuilt int64 `json:"statements_built"`
	RowsScanned     int64 `json:"rows_scanned"`
	RowsUpdated     int64 `json:"rows_updated"`
	WriteFailures   int64 `json:"write_failures"`
}

func newReportStats(s types.RunStats) reportStats {
	return reportStats{
		StatementsBuilt: s.StatementsBuilt,
		RowsScanned:     s.RowsScanned,
		RowsUpdated:     s.RowsUpdated,
		WriteFailures:   s.WriteFailures,
	}
}

func reportTimestamp(now time.Time) string {
	return now.Format("2006-01-02 15:04:05") + fmt.Sprintf(".%03d", now.Nanosecond()/1e6)
}

// writeReportToFile writes report under dir/<date>/ and returns the path.
func writeReportToFile(dir string, report *RunReport, now time.Time) (string, error) {
	reportDir := filepath.Join(dir, now.Format("2006-01-02"))
	if err := os.MkdirAll(reportDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory %s: %w", reportDir, err)
	}

	fileNamePrefix := "recode_report_"
	if report.Mode == taskstore.ModeDryRun {
		fileNamePrefix = "dry_run_report_"
	}
	fileNameSuffix := now.Format("150405") + fmt.Sprintf(".%03d", now.Nanosecond()/1e6)
	filePath := filepath.Join(reportDir, fmt.Sprintf("%s%s.json", fileNamePrefix, fileNameSuffix))

	reportData, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report to JSON: %w", err)
	}

	if err := os.WriteFile(filePath, reportData, 0644); err != nil {
		return "", fmt.Errorf("failed to write report to file %s: %w", filePath, err)
	}

	logger.Info("Wrote report to %s", filePath)
	return filePath, nil
}
