package db

import (
	"bytes"
	"compress/gzip"
	"encoding/csv"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pulse.lab/internal/ppg"
	"github.com/banshee-data/pulse.lab/internal/ppg/estimate"
	"github.com/banshee-data/pulse.lab/internal/ppg/sim"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func intPtr(v int) *int { return &v }

func testReadout(tick uint64, status estimate.Status, hr, spo2 *int) sim.Readout {
	return sim.Readout{
		Timestamp:    time.Date(2026, 3, 1, 12, 0, int(tick), 0, time.UTC),
		Tick:         tick,
		Algorithm:    estimate.KindAutocorrelator,
		Emitter:      ppg.EmitterRedIR,
		Params:       ppg.DefaultParams(),
		Result:       estimate.Result{HeartRateBPM: hr, Status: status},
		SpO2:         estimate.SpO2Result{Percentage: spo2},
		SNR:          54,
		MeasuredSNR:  12.5,
		Samples:      200,
		EvalDuration: 350 * time.Microsecond,
	}
}

func TestNewDB_MigratesToLatest(t *testing.T) {
	db := newTestDB(t)

	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(3), version)
	assert.False(t, dirty)

	// Running again is a no-op.
	require.NoError(t, db.MigrateUp())

	var journal string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journal))
	assert.Equal(t, "wal", strings.ToLower(journal))
}

func TestOpenDB_FreshVersionIsZero(t *testing.T) {
	db, err := OpenDB(filepath.Join(t.TempDir(), "fresh.db"))
	require.NoError(t, err)
	defer db.Close()

	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
	assert.False(t, dirty)
}

func TestReadouts_KeepRecordingOrderAcrossReset(t *testing.T) {
	db := newTestDB(t)
	_, err := db.StartSession(sim.DefaultConfig(), time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	// The engine's tick count restarts at 1 after a reset.
	for _, tick := range []uint64{1, 2, 3, 1, 2} {
		require.NoError(t, db.RecordReadout(testReadout(tick, estimate.StatusScanning, nil, nil)))
	}

	rows, err := db.Readouts("", 0)
	require.NoError(t, err)
	var ticks []uint64
	for i, row := range rows {
		ticks = append(ticks, row.Tick)
		if i > 0 {
			assert.Greater(t, row.ID, rows[i-1].ID)
		}
	}
	assert.Equal(t, []uint64{1, 2, 3, 1, 2}, ticks)
}

func TestRecordReadout_RequiresSession(t *testing.T) {
	db := newTestDB(t)
	err := db.RecordReadout(testReadout(1, estimate.StatusScanning, nil, nil))
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestRecordAndQueryReadouts(t *testing.T) {
	db := newTestDB(t)
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	id, err := db.StartSession(sim.DefaultConfig(), started)
	require.NoError(t, err)
	require.Len(t, id, 36)
	assert.Equal(t, id, db.ActiveSession())

	require.NoError(t, db.RecordReadout(testReadout(1, estimate.StatusScanning, nil, nil)))
	require.NoError(t, db.RecordReadout(testReadout(2, estimate.StatusTracked, intPtr(75), intPtr(98))))

	rows, err := db.Readouts("", 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "Scanning", rows[0].Status)
	assert.Nil(t, rows[0].HeartRateBPM)
	assert.Nil(t, rows[0].SpO2Pct)

	second := rows[1]
	assert.Equal(t, uint64(2), second.Tick)
	assert.Equal(t, "Tracked", second.Status)
	require.NotNil(t, second.HeartRateBPM)
	assert.Equal(t, 75, *second.HeartRateBPM)
	require.NotNil(t, second.SpO2Pct)
	assert.Equal(t, 98, *second.SpO2Pct)
	assert.Equal(t, "dsp", second.Algorithm)
	assert.Equal(t, "red_ir", second.Emitter)
	assert.Equal(t, int64(350), second.EvalMicros)
	assert.Equal(t, 75, second.TargetHeartRateBPM)
	assert.Equal(t, 98, second.TargetSpO2Pct)
	assert.WithinDuration(t, time.Date(2026, 3, 1, 12, 0, 2, 0, time.UTC), second.RecordedAt, time.Millisecond)

	sessions, err := db.Sessions(10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, id, sessions[0].SessionID)
	assert.Equal(t, "dsp", sessions[0].Algorithm)
	assert.Equal(t, "multi", sessions[0].Emitter)
	assert.Equal(t, 50.0, sessions[0].SampleRateHz)
	assert.WithinDuration(t, started, sessions[0].StartedAt, time.Millisecond)
}

func TestSessions_NewestFirst(t *testing.T) {
	db := newTestDB(t)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		id, err := db.StartSession(sim.DefaultConfig(), base.Add(time.Duration(i)*time.Hour))
		require.NoError(t, err)
		ids = append(ids, id)
	}
	assert.Equal(t, ids[2], db.ActiveSession())

	sessions, err := db.Sessions(2)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, ids[2], sessions[0].SessionID)
	assert.Equal(t, ids[1], sessions[1].SessionID)
}

func TestEngineRecordsIntoDB(t *testing.T) {
	db := newTestDB(t)
	cfg := sim.DefaultConfig()
	_, err := db.StartSession(cfg, time.Now())
	require.NoError(t, err)

	e, err := sim.New(cfg)
	require.NoError(t, err)
	e.AddSink(db)
	for i := 0; i < 120; i++ {
		e.PhysicsTick()
		if i%25 == 24 {
			e.AlgorithmTick()
		}
	}

	rows, err := db.Readouts("", 0)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "Scanning", rows[0].Status)
	for i, row := range rows {
		assert.Equal(t, uint64(i+1), row.Tick)
		assert.Equal(t, 25*(i+1), row.Samples)
	}
}

func TestWriteReadoutsCSV(t *testing.T) {
	var buf bytes.Buffer
	rows := []ReadoutRow{
		{Tick: 1, Status: "Scanning", Algorithm: "basic", Emitter: "green_only"},
		{Tick: 2, Status: "Locked", Algorithm: "basic", Emitter: "green_only", HeartRateBPM: intPtr(72)},
	}
	require.NoError(t, WriteReadoutsCSV(&buf, rows))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, csvHeader, records[0])
	assert.Equal(t, "", records[1][5])
	assert.Equal(t, "72", records[2][5])
	assert.Equal(t, "Locked", records[2][4])
}

func TestAttachAdminRoutes(t *testing.T) {
	db := newTestDB(t)
	_, err := db.StartSession(sim.DefaultConfig(), time.Now())
	require.NoError(t, err)
	require.NoError(t, db.RecordReadout(testReadout(1, estimate.StatusTracked, intPtr(75), nil)))

	mux := http.NewServeMux()
	require.NoError(t, db.AttachAdminRoutes(mux))

	// tsweb only serves /debug/ to loopback callers.
	req := httptest.NewRequest(http.MethodGet, "/debug/readouts.csv", nil)
	req.RemoteAddr = "127.0.0.1:1234"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "Tracked")

	req = httptest.NewRequest(http.MethodGet, "/debug/backup", nil)
	req.RemoteAddr = "127.0.0.1:1234"
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	gz, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	data, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("SQLite format 3")))
}
