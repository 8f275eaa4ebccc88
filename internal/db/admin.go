package db

import (
	"compress/gzip"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/banshee-data/pulse.lab/internal/security"
)

// AttachAdminRoutes mounts the database debug tools under /debug/: a live
// tailsql console, a CSV export of readouts and a gzipped backup.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://pulselab.db", db.DB, &tailsql.DBOptions{
		Label: "Pulse lab readouts",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("readouts.csv", "Download readouts of a session as CSV (?session=, default active)",
		http.HandlerFunc(db.handleReadoutsCSV))
	debug.Handle("backup", "Create and download a backup of the database now",
		http.HandlerFunc(db.handleBackup))
	return nil
}

var csvHeader = []string{
	"tick", "recorded_at", "algorithm", "emitter", "status", "heart_rate_bpm", "spo2_pct",
	"snr_db", "measured_snr_db", "samples", "eval_us", "target_heart_rate_bpm", "target_spo2_pct",
	"noise_level", "motion_artifact_level",
}

func (db *DB) handleReadoutsCSV(w http.ResponseWriter, r *http.Request) {
	session := r.URL.Query().Get("session")
	rows, err := db.Readouts(session, 1_000_000)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to load readouts: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	name := "readouts.csv"
	if session != "" {
		name = security.SanitizeFilename("readouts-"+session) + ".csv"
	}
	w.Header().Set("Content-Disposition", "attachment; filename="+name)
	if err := WriteReadoutsCSV(w, rows); err != nil {
		log.Printf("readouts csv export: %v", err)
	}
}

// WriteReadoutsCSV writes rows with a header line. Missing estimates are
// written as empty fields.
func WriteReadoutsCSV(w io.Writer, rows []ReadoutRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, row := range rows {
		rec := []string{
			strconv.FormatUint(row.Tick, 10),
			row.RecordedAt.Format(time.RFC3339Nano),
			row.Algorithm,
			row.Emitter,
			row.Status,
			optionalInt(row.HeartRateBPM),
			optionalInt(row.SpO2Pct),
			strconv.FormatFloat(row.SNRdB, 'f', 2, 64),
			strconv.FormatFloat(row.MeasuredSNRdB, 'f', 2, 64),
			strconv.Itoa(row.Samples),
			strconv.FormatInt(row.EvalMicros, 10),
			strconv.Itoa(row.TargetHeartRateBPM),
			strconv.Itoa(row.TargetSpO2Pct),
			strconv.FormatFloat(row.NoiseLevel, 'f', 3, 64),
			strconv.FormatFloat(row.MotionArtifactLevel, 'f', 3, 64),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func optionalInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func (db *DB) handleBackup(w http.ResponseWriter, r *http.Request) {
	dir, err := os.MkdirTemp("", "pulselab-backup-")
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup dir: %v", err), http.StatusInternalServerError)
		return
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			log.Printf("Failed to remove backup dir: %v", err)
		}
	}()

	name := fmt.Sprintf("backup-%d.db", time.Now().Unix())
	backupPath := filepath.Join(dir, name)
	if _, err := db.Exec("VACUUM INTO ?", backupPath); err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
		return
	}
	f, err := os.Open(backupPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", name))
	w.Header().Set("Content-Type", "application/gzip")
	gz := gzip.NewWriter(w)
	defer gz.Close()
	if _, err := io.Copy(gz, f); err != nil {
		log.Printf("Failed to stream backup: %v", err)
	}
}
