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
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgedge/recode/db/queries"
	dbconn "github.com/pgedge/recode/internal/infra/db"
	"github.com/pgedge/recode/pkg/config"
	"github.com/pgedge/recode/pkg/logger"
	"github.com/pgedge/recode/pkg/taskstore"
	"github.com/pgedge/recode/pkg/types"
)

// ReadSource is the snapshot the run introspects and scans.
type ReadSource interface {
	queries.DBTX
	Encoding() string
	Close(ctx context.Context) error
}

// WriteTarget receives the corrective UPDATEs, each in its own transaction.
type WriteTarget interface {
	Executor
	Close()
}

type RecodeTask struct {
	Schema string
	Table  string

	Update             bool
	Debug              bool
	Quiet              bool
	GenerateReport     bool
	SkipHistory        bool
	InstallKeyFunction bool

	Config    *config.Config
	RunID     string
	ReportDir string

	Out         io.Writer
	ProgressOut io.Writer

	OpenRead  func(ctx context.Context, cfg config.PostgresConfig) (ReadSource, error)
	OpenWrite func(ctx context.Context, cfg config.PostgresConfig) (WriteTarget, error)

	TaskStore *taskstore.Store

	Stats        types.RunStats
	Failures     []types.WriteFailure
	Skipped      bool
	QueryLogPath string
	ReportPath   string

	table   types.TableRef
	read    ReadSource
	write   WriteTarget
	writer  *Writer
	columns *types.ColumnCatalog
	key     types.UniqueKey
	log     *QueryLog
	bar     *progress
	report  *RunReport
	now     func() time.Time
}

func NewRecodeTask() *RecodeTask {
	return &RecodeTask{
		RunID:       uuid.NewString(),
		ReportDir:   "reports",
		Out:         os.Stdout,
		ProgressOut: os.Stderr,
		OpenRead: func(ctx context.Context, cfg config.PostgresConfig) (ReadSource, error) {
			s, err := dbconn.OpenReadSession(ctx, cfg)
			if err != nil {
				return nil, err
			}
			return s, nil
		},
		OpenWrite: func(ctx context.Context, cfg config.PostgresConfig) (WriteTarget, error) {
			p, err := dbconn.OpenWritePool(ctx, cfg)
			if err != nil {
				return nil, err
			}
			return p, nil
		},
		now: time.Now,
	}
}

func (t *RecodeTask) mode() string {
	if t.Update {
		return taskstore.ModeUpdate
	}
	return taskstore.ModeDryRun
}

func (t *RecodeTask) Validate() error {
	t.Schema = strings.TrimSpace(t.Schema)
	t.Table = strings.TrimSpace(t.Table)
	if t.Schema == "" {
		return fmt.Errorf("schema is required")
	}
	if t.Table == "" {
		return fmt.Errorf("table is required")
	}
	if t.Config == nil {
		t.Config = config.Get()
	}
	if err := t.Config.Validate(); err != nil {
		return err
	}
	if t.OpenRead == nil || t.OpenWrite == nil {
		return fmt.Errorf("database openers are not set")
	}
	if t.Out == nil {
		t.Out = os.Stdout
	}
	if t.ProgressOut == nil {
		t.ProgressOut = os.Stderr
	}
	if t.now == nil {
		t.now = time.Now
	}
	if strings.TrimSpace(t.RunID) == "" {
		t.RunID = uuid.NewString()
	}
	t.table = types.TableRef{Schema: t.Schema, Table: t.Table}
	return nil
}

// Run executes one pass over the table. Per-row write failures are recorded
// and do not fail the run; anything that stops the scan does.
func (t *RecodeTask) Run(ctx context.Context) (err error) {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("task validation failed: %w", err)
	}

	t.Stats = types.RunStats{StartedAt: t.now()}
	t.Failures = nil
	t.Skipped = false

	recorder := t.startHistory()
	defer func() {
		t.finishHistory(recorder, err)
	}()

	if t.GenerateReport {
		t.report = t.initialiseReport()
	}
	defer func() {
		if t.GenerateReport && t.report != nil {
			t.finishReport(err)
		}
	}()

	defer t.cleanup(context.WithoutCancel(ctx))

	err = t.execute(ctx)
	if err != nil {
		t.printPgError(err)
	}
	return err
}

func (t *RecodeTask) execute(ctx context.Context) error {
	pgCfg := t.Config.Postgres

	write, err := t.OpenWrite(ctx, pgCfg)
	if err != nil {
		return err
	}
	t.write = write
	t.writer = NewWriter(write)

	if t.InstallKeyFunction {
		if err := queries.InstallShortestUniqueKeyFunction(ctx, write, t.Config.Recode.KeyFunction); err != nil {
			return err
		}
		logger.Info("Installed key function %s", t.Config.Recode.KeyFunction)
	}

	read, err := t.OpenRead(ctx, pgCfg)
	if err != nil {
		return err
	}
	t.read = read
	fmt.Fprintf(t.Out, "Connected to %s: encoding %s\n", dbconn.Describe(pgCfg), read.Encoding())

	parent, err := queries.IsParentTable(ctx, read, t.Schema, t.Table)
	if err != nil {
		return err
	}
	if parent {
		fmt.Fprintf(t.Out, "%s.%s is a parent table.  Skipping check on this table, as all children will be checked individually.\n", t.Schema, t.Table)
		t.Skipped = true
		return nil
	}

	selectSQL, err := t.introspect(ctx)
	if err != nil {
		return err
	}

	if err := t.scan(ctx, selectSQL); err != nil {
		return err
	}

	t.Stats.FinishedAt = t.now()
	seconds := strconv.FormatFloat(t.Stats.Elapsed().Seconds(), 'f', -1, 64)
	if t.Update {
		fmt.Fprintf(t.Out, "Updated %d rows in %s seconds.\n", t.Stats.StatementsBuilt, seconds)
	} else {
		fmt.Fprintf(t.Out, "Generated %d update statements in %s seconds.\n", t.Stats.StatementsBuilt, seconds)
	}
	if t.Stats.WriteFailures > 0 {
		logger.Warn("%d of %d updates on %s.%s failed", t.Stats.WriteFailures, t.Stats.StatementsBuilt, t.Schema, t.Table)
	}
	return nil
}

func (t *RecodeTask) introspect(ctx context.Context) (string, error) {
	columns, err := queries.GetCharColumns(ctx, t.read, t.Schema, t.Table)
	if err != nil {
		return "", err
	}
	t.columns = columns
	if columns.Len() == 0 {
		logger.Warn("%s.%s has no character columns", t.Schema, t.Table)
	}

	key, err := queries.GetShortestUniqueKey(ctx, t.read, t.Config.Recode.KeyFunction, t.Schema, t.Table)
	if err != nil {
		return "", err
	}
	t.key = key
	logger.Debug("unique key for %s.%s: %s", t.Schema, t.Table, strings.Join(key.Names(), ", "))
	if t.report != nil {
		t.report.UniqueKey = key.Names()
	}

	selectSQL, err := queries.BuildSelectQuery(t.Schema, t.Table, columns, key)
	if err != nil {
		return "", err
	}

	if !t.Quiet && !t.Debug {
		estimate, err := queries.GetRowCountEstimate(ctx, t.read, t.Schema, t.Table)
		if err != nil {
			return "", err
		}
		t.bar = newProgress(t.ProgressOut, estimate)
	}

	qlog, err := OpenQueryLog(t.Config.Recode.LogDir, t.Schema, t.Table, t.now())
	if err != nil {
		return "", err
	}
	t.log = qlog
	t.QueryLogPath = qlog.Path()
	if t.report != nil {
		t.report.QueryLog = qlog.Path()
	}

	return selectSQL, nil
}

func (t *RecodeTask) scan(ctx context.Context, selectSQL string) error {
	scanner := NewScanner(t.read, t.Config.Recode.CursorName, t.Config.Recode.BatchSize, queries.SelectColumns(t.columns, t.key))

	fmt.Fprintf(t.Out, "Select query:  %s\n", selectSQL)
	if err := scanner.Open(ctx, selectSQL); err != nil {
		return err
	}

	for {
		batch, err := scanner.Next(ctx)
		if err != nil {
			return err
		}
		if batch == nil {
			break
		}
		for _, row := range batch {
			t.Stats.RowsScanned++
			if err := t.processRow(ctx, row); err != nil {
				return err
			}
		}
		t.bar.add(len(batch))
	}
	t.bar.finish()
	t.bar = nil

	return scanner.Close(ctx)
}

// processRow returns an error only for problems that make further rows
// pointless, such as an unwritable query log.
func (t *RecodeTask) processRow(ctx context.Context, row types.Row) error {
	corrections := CorrectRow(row, t.columns)
	if len(corrections) == 0 {
		return nil
	}

	stmt, err := BuildUpdate(t.table, t.columns, t.key, corrections, row)
	if err != nil {
		t.recordFailure(types.RowOutcome{Kind: types.OutcomeWriteFailed, Message: err.Error()})
		logger.Warn("skipping row: %v", err)
		return nil
	}
	rendered, err := stmt.Render()
	if err != nil {
		return fmt.Errorf("failed to render update: %w", err)
	}

	if t.Debug {
		fmt.Fprintln(t.Out, rendered)
	}
	if err := t.log.Write(rendered); err != nil {
		return err
	}
	t.Stats.StatementsBuilt++

	if !t.Update {
		return nil
	}

	outcome := t.writer.Apply(ctx, stmt)
	outcome.Statement = rendered
	if outcome.Kind == types.OutcomeWriteFailed {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if outcome.Code != "" {
			fmt.Fprintf(t.Out, "PG error code: %s\n", outcome.Code)
		}
		fmt.Fprintln(t.Out, outcome.Message)
		t.recordFailure(outcome)
		return nil
	}
	t.Stats.RowsUpdated += outcome.RowsAffected
	return nil
}

func (t *RecodeTask) recordFailure(outcome types.RowOutcome) {
	t.Stats.WriteFailures++
	t.Failures = append(t.Failures, types.WriteFailure{
		Statement: outcome.Statement,
		Code:      outcome.Code,
		Message:   outcome.Message,
	})
}

func (t *RecodeTask) printPgError(err error) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		fmt.Fprintf(t.Out, "PG error code: %s\n", pgErr.Code)
		fmt.Fprintln(t.Out, pgErr.Message)
	}
}

func (t *RecodeTask) cleanup(ctx context.Context) {
	t.bar.abort()
	t.bar = nil
	if err := t.log.Close(); err != nil {
		logger.Warn("%v", err)
	}
	t.log = nil
	if t.write != nil {
		t.write.Close()
		t.write = nil
	}
	if t.read != nil {
		if err := t.read.Close(ctx); err != nil {
			logger.Warn("failed to close read session: %v", err)
		}
		t.read = nil
	}
}

func (t *RecodeTask) runContext() map[string]any {
	return map[string]any{
		"update":          t.Update,
		"debug":           t.Debug,
		"batch_size":      t.Config.Recode.BatchSize,
		"key_function":    t.Config.Recode.KeyFunction,
		"generate_report": t.GenerateReport,
	}
}

func (t *RecodeTask) startHistory() *taskstore.Recorder {
	if t.SkipHistory {
		return nil
	}
	rec, err := taskstore.NewRecorder(t.TaskStore, t.Config.Recode.TaskStorePath)
	if err != nil {
		logger.Warn("recode: unable to initialise task store (%v)", err)
		return nil
	}
	err = rec.Create(taskstore.Record{
		RunID:      t.RunID,
		Status:     taskstore.StatusRunning,
		Mode:       t.mode(),
		SchemaName: t.Schema,
		TableName:  t.Table,
		StartedAt:  t.Stats.StartedAt,
		RunContext: t.runContext(),
	})
	if err != nil {
		logger.Warn("recode: unable to write initial run status (%v)", err)
	}
	return rec
}

func (t *RecodeTask) finishHistory(rec *taskstore.Recorder, runErr error) {
	if rec == nil {
		return
	}
	defer func() {
		if err := rec.Close(); err != nil {
			logger.Warn("recode: failed to close task store (%v)", err)
		}
	}()
	if !rec.Created() {
		return
	}

	finishedAt := t.now()
	status := taskstore.StatusCompleted
	switch {
	case runErr != nil:
		status = taskstore.StatusFailed
	case t.Skipped:
		status = taskstore.StatusSkipped
	}

	ctx := t.runContext()
	if runErr != nil {
		ctx["error"] = runErr.Error()
	}
	if t.QueryLogPath != "" {
		ctx["query_log"] = t.QueryLogPath
	}
	if t.ReportPath != "" {
		ctx["report"] = t.ReportPath
	}

	err := rec.Update(taskstore.Record{
		RunID:           t.RunID,
		Status:          status,
		StatementsBuilt: t.Stats.StatementsBuilt,
		RowsScanned:     t.Stats.RowsScanned,
		RowsUpdated:     t.Stats.RowsUpdated,
		WriteFailures:   t.Stats.WriteFailures,
		FinishedAt:      finishedAt,
		TimeTaken:       finishedAt.Sub(t.Stats.StartedAt).Seconds(),
		RunContext:      ctx,
	})
	if err != nil {
		logger.Warn("recode: unable to update run status (%v)", err)
	}
}

func (t *RecodeTask) initialiseReport() *RunReport {
	return &RunReport{
		RunID:     t.RunID,
		Mode:      t.mode(),
		Timestamp: reportTimestamp(t.Stats.StartedAt),
		SuppliedArgs: map[string]any{
			"schema":               t.Schema,
			"table":                t.Table,
			"update":               t.Update,
			"debug":                t.Debug,
			"quiet":                t.Quiet,
			"batch_size":           t.Config.Recode.BatchSize,
			"key_function":         t.Config.Recode.KeyFunction,
			"install_key_function": t.InstallKeyFunction,
			"log_dir":              t.Config.Recode.LogDir,
		},
		Connection: dbconn.Describe(t.Config.Postgres),
	}
}

func (t *RecodeTask) finishReport(runErr error) {
	now := t.now()
	t.report.Skipped = t.Skipped
	t.report.Stats = newReportStats(t.Stats)
	t.report.WriteFailures = t.Failures
	t.report.RunTimeSeconds = now.Sub(t.Stats.StartedAt).Seconds()
	if runErr != nil {
		t.report.Error = runErr.Error()
	}
	path, err := writeReportToFile(t.ReportDir, t.report, now)
	if err != nil {
		logger.Warn("Warning: failed to write recode report: %v", err)
		return
	}
	t.ReportPath = path
}
