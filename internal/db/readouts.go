package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/banshee-data/pulse.lab/internal/ppg/sim"
)

// ReadoutRow is a stored readout.
type ReadoutRow struct {
	ID                  int64     `json:"id"`
	SessionID           string    `json:"session_id"`
	RecordedAt          time.Time `json:"recorded_at"`
	Tick                uint64    `json:"tick"`
	Algorithm           string    `json:"algorithm"`
	Emitter             string    `json:"emitter"`
	Status              string    `json:"status"`
	HeartRateBPM        *int      `json:"heart_rate_bpm"`
	SpO2Pct             *int      `json:"spo2_pct"`
	SNRdB               float64   `json:"snr_db"`
	MeasuredSNRdB       float64   `json:"measured_snr_db"`
	Samples             int       `json:"samples"`
	EvalMicros          int64     `json:"eval_us"`
	TargetHeartRateBPM  int       `json:"target_heart_rate_bpm"`
	TargetSpO2Pct       int       `json:"target_spo2_pct"`
	NoiseLevel          float64   `json:"noise_level"`
	MotionArtifactLevel float64   `json:"motion_artifact_level"`
}

// RecordReadout stores r under the active session. It implements sim.Sink.
func (db *DB) RecordReadout(r sim.Readout) error {
	session := db.ActiveSession()
	if session == "" {
		return ErrNoSession
	}

	var hr, spo2 sql.NullInt64
	if v, ok := r.Result.Estimate(); ok {
		hr = sql.NullInt64{Int64: int64(v), Valid: true}
	}
	if v, ok := r.SpO2.Value(); ok {
		spo2 = sql.NullInt64{Int64: int64(v), Valid: true}
	}

	_, err := db.Exec(
		`INSERT INTO readouts (
			session_id, recorded_at, tick, algorithm, emitter, status,
			heart_rate_bpm, spo2_pct, snr_db, measured_snr_db, samples, eval_us,
			target_heart_rate_bpm, target_spo2_pct, noise_level, motion_artifact_level
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session, unixSeconds(r.Timestamp), int64(r.Tick), r.Algorithm.String(), r.Emitter.String(),
		r.Result.Status.String(), hr, spo2, r.SNR, r.MeasuredSNR, r.Samples, r.EvalDuration.Microseconds(),
		r.Params.HeartRateBPM, r.Params.SpO2Target, r.Params.NoiseLevel, r.Params.MotionArtifactLevel,
	)
	if err != nil {
		return fmt.Errorf("insert readout: %w", err)
	}
	return nil
}

// Readouts returns up to limit readouts of a session in the order they were
// recorded. Ticks restart after an engine reset, so they do not order a
// session. An empty sessionID selects the active session.
func (db *DB) Readouts(sessionID string, limit int) ([]ReadoutRow, error) {
	if sessionID == "" {
		sessionID = db.ActiveSession()
	}
	if limit <= 0 {
		limit = 1000
	}
	rows, err := db.Query(
		`SELECT id, session_id, recorded_at, tick, algorithm, emitter, status,
			heart_rate_bpm, spo2_pct, snr_db, measured_snr_db, samples, eval_us,
			target_heart_rate_bpm, target_spo2_pct, noise_level, motion_artifact_level
		 FROM readouts WHERE session_id = ? ORDER BY id ASC LIMIT ?`,
		sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ReadoutRow
	for rows.Next() {
		var (
			row      ReadoutRow
			recorded float64
			tick     int64
			hr, spo2 sql.NullInt64
		)
		if err := rows.Scan(
			&row.ID, &row.SessionID, &recorded, &tick, &row.Algorithm, &row.Emitter, &row.Status,
			&hr, &spo2, &row.SNRdB, &row.MeasuredSNRdB, &row.Samples, &row.EvalMicros,
			&row.TargetHeartRateBPM, &row.TargetSpO2Pct, &row.NoiseLevel, &row.MotionArtifactLevel,
		); err != nil {
			return nil, err
		}
		row.RecordedAt = fromUnixSeconds(recorded)
		row.Tick = uint64(tick)
		if hr.Valid {
			v := int(hr.Int64)
			row.HeartRateBPM = &v
		}
		if spo2.Valid {
			v := int(spo2.Int64)
			row.SpO2Pct = &v
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
