package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/san-kum/probowler/server/analysis"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// Source records how a trial reached the service.
type Source string

const (
	SourceJSON      Source = "json"
	SourceCSV       Source = "csv"
	SourceVideo     Source = "video"
	SourceBatch     Source = "batch"
	SourceWebSocket Source = "websocket"
	SourceCLI       Source = "cli"
)

// ReportRecord is a stored analysis. Report is nil in listings.
type ReportRecord struct {
	ID               string
	TrialID          string
	Source           Source
	DominantSide     analysis.Side
	FFCFrame         analysis.FrameRef
	ReleaseFrame     analysis.FrameRef
	Fallback         bool
	FramesProcessed  int
	FramesIncomplete int
	CreatedAt        time.Time
	Report           *analysis.Report
}

// ReportRepository stores and loads reports.
type ReportRepository struct {
	db *sql.DB
}

// Reports returns the report repository for this store.
func (s *Store) Reports() *ReportRepository {
	return &ReportRepository{db: s.db}
}

// Create inserts rec and its report rows in one transaction.
func (r *ReportRepository) Create(ctx context.Context, rec *ReportRecord) error {
	if rec.Report == nil {
		return fmt.Errorf("report %s has no data", rec.ID)
	}
	data, err := json.Marshal(rec.Report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	rec.FFCFrame = rec.Report.Events.FFC
	rec.ReleaseFrame = rec.Report.Events.Release
	rec.Fallback = rec.Report.Events.Fallback
	rec.FramesProcessed = rec.Report.FramesProcessed
	rec.FramesIncomplete = rec.Report.FramesIncomplete
	rec.CreatedAt = time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO reports (id, trial_id, source, dominant_side, ffc_frame, release_frame,
			fallback, frames_processed, frames_incomplete, data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.TrialID, string(rec.Source), string(rec.DominantSide),
		nullFrame(rec.FFCFrame), nullFrame(rec.ReleaseFrame),
		rec.Fallback, rec.FramesProcessed, rec.FramesIncomplete, string(data), rec.CreatedAt,
	)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO report_rows (report_id, position, feature, average, min, max, frames, phase)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, row := range rec.Report.Rows {
		_, err := stmt.ExecContext(ctx, rec.ID, i, row.Feature,
			nullValue(row.Average), nullValue(row.Min), nullValue(row.Max), row.Frames, row.MeasurementPhase)
		if err != nil {
			return fmt.Errorf("failed to insert row %q: %w", row.Feature, err)
		}
	}

	return tx.Commit()
}

// GetByID loads a report with its full data.
func (r *ReportRepository) GetByID(ctx context.Context, id string) (*ReportRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, trial_id, source, dominant_side, ffc_frame, release_frame, fallback,
			frames_processed, frames_incomplete, created_at, data
		 FROM reports WHERE id = ?`, id)

	var data string
	rec, err := scanRecord(row, &data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	rec.Report = &analysis.Report{}
	if err := json.Unmarshal([]byte(data), rec.Report); err != nil {
		return nil, fmt.Errorf("failed to decode report %s: %w", id, err)
	}
	return rec, nil
}

// Rows returns the summary rows of a report in report order.
func (r *ReportRepository) Rows(ctx context.Context, id string) ([]analysis.SummaryRow, error) {
	rec, err := r.metadata(ctx, id)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT feature, average, min, max, frames, phase
		 FROM report_rows WHERE report_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []analysis.SummaryRow
	for rows.Next() {
		var sr analysis.SummaryRow
		var avg, lo, hi sql.NullFloat64
		if err := rows.Scan(&sr.Feature, &avg, &lo, &hi, &sr.Frames, &sr.MeasurementPhase); err != nil {
			return nil, err
		}
		sr.Average, sr.Min, sr.Max = fromNull(avg), fromNull(lo), fromNull(hi)
		sr.FFCFrame, sr.ReleaseFrame = rec.FFCFrame, rec.ReleaseFrame
		out = append(out, sr)
	}
	return out, rows.Err()
}

// List returns report metadata, newest first.
func (r *ReportRepository) List(ctx context.Context, limit, offset int) ([]ReportRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, trial_id, source, dominant_side, ffc_frame, release_frame, fallback,
			frames_processed, frames_incomplete, created_at
		 FROM reports ORDER BY created_at DESC, id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ReportRecord
	for rows.Next() {
		rec, err := scanRecord(rows, nil)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// Count returns the number of stored reports.
func (r *ReportRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reports`).Scan(&n)
	return n, err
}

// Delete removes a report and its rows.
func (r *ReportRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM reports WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ReportRepository) metadata(ctx context.Context, id string) (*ReportRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, trial_id, source, dominant_side, ffc_frame, release_frame, fallback,
			frames_processed, frames_incomplete, created_at
		 FROM reports WHERE id = ?`, id)
	rec, err := scanRecord(row, nil)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

type scanner interface {
	Scan(dest ...any) error
}

// scanRecord reads the metadata columns, plus data when data is not nil.
func scanRecord(s scanner, data *string) (*ReportRecord, error) {
	rec := &ReportRecord{}
	var source, side string
	var ffc, release sql.NullInt64

	dest := []any{&rec.ID, &rec.TrialID, &source, &side, &ffc, &release, &rec.Fallback,
		&rec.FramesProcessed, &rec.FramesIncomplete, &rec.CreatedAt}
	if data != nil {
		dest = append(dest, data)
	}
	if err := s.Scan(dest...); err != nil {
		return nil, err
	}

	rec.Source = Source(source)
	rec.DominantSide = analysis.Side(side)
	rec.FFCFrame = fromNullFrame(ffc)
	rec.ReleaseFrame = fromNullFrame(release)
	return rec, nil
}

func nullValue(v analysis.Value) sql.NullFloat64 {
	f, ok := v.Get()
	return sql.NullFloat64{Float64: f, Valid: ok}
}

func fromNull(n sql.NullFloat64) analysis.Value {
	if !n.Valid {
		return analysis.None()
	}
	return analysis.Some(n.Float64)
}

func nullFrame(r analysis.FrameRef) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(r.Index), Valid: r.OK}
}

func fromNullFrame(n sql.NullInt64) analysis.FrameRef {
	if !n.Valid {
		return analysis.FrameRef{}
	}
	return analysis.FrameRef{Index: int(n.Int64), OK: true}
}
