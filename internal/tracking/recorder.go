package tracking

import (
	"database/sql"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"cadenza.click/internal/state"
)

// DefaultSampleInterval throttles how often progress samples are written.
const DefaultSampleInterval = 5 * time.Second

// Recorder observes a state store and writes the ledger: a session row when
// a new request appears, event rows for errors and phase transitions, and
// throttled progress samples.
type Recorder struct {
	db *sql.DB
	// SampleInterval is the minimum spacing between progress samples.
	SampleInterval time.Duration

	mu         sync.Mutex
	sessionID  string
	sessionURL string
	lastPhase  state.PlaybackState
	hadPhase   bool
	lastErr    error
	lastSample time.Time
	now        func() time.Time
}

// NewRecorder creates a recorder writing to db.
func NewRecorder(db *sql.DB) *Recorder {
	return &Recorder{
		db:             db,
		SampleInterval: DefaultSampleInterval,
		now:            time.Now,
	}
}

// Attach subscribes the recorder to the store. The returned cancel function
// detaches it.
func (r *Recorder) Attach(store *state.Store) (cancel func()) {
	slog.Debug("attaching session recorder")
	return store.Observe(r.observe)
}

func (r *Recorder) observe(snapshot state.State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if snapshot.Request != nil && snapshot.Request.URL != r.sessionURL {
		r.beginSession(snapshot)
	}
	if r.sessionID == "" {
		return
	}

	if snapshot.Err != nil && snapshot.Err != r.lastErr {
		r.lastErr = snapshot.Err
		r.writeEvent("error", snapshot.Err.Error())
	}

	info := snapshot.PlaybackInfo
	if info == nil {
		return
	}

	if !r.hadPhase || info.State != r.lastPhase {
		r.hadPhase = true
		r.lastPhase = info.State
		r.writeEvent("phase", info.State.String())
	}

	if now := r.now(); now.Sub(r.lastSample) >= r.SampleInterval {
		r.lastSample = now
		r.writeSample(now, info)
	}
}

func (r *Recorder) beginSession(snapshot state.State) {
	id := uuid.New().String()
	title := ""
	if snapshot.PlaybackInfo != nil {
		title = snapshot.PlaybackInfo.Title
	}

	_, err := r.db.Exec(
		`INSERT INTO sessions (id, url, title, started_at) VALUES (?, ?, ?, ?)`,
		id, snapshot.Request.URL, title, r.now().UnixMilli())
	if err != nil {
		slog.Error("failed to record session start", "url", snapshot.Request.URL, "error", err)
		return
	}

	r.sessionID = id
	r.sessionURL = snapshot.Request.URL
	r.hadPhase = false
	r.lastErr = nil
	r.lastSample = time.Time{}

	slog.Info("playback session recorded", "session_id", id, "url", snapshot.Request.URL)
}

func (r *Recorder) writeEvent(kind, detail string) {
	_, err := r.db.Exec(
		`INSERT INTO session_events (session_id, timestamp, kind, detail) VALUES (?, ?, ?, ?)`,
		r.sessionID, r.now().UnixMilli(), kind, detail)
	if err != nil {
		slog.Error("failed to record session event", "kind", kind, "error", err)
	}
}

func (r *Recorder) writeSample(now time.Time, info *state.PlaybackInfo) {
	_, err := r.db.Exec(
		`INSERT INTO progress_samples (session_id, timestamp, position_ms, state) VALUES (?, ?, ?, ?)`,
		r.sessionID, now.UnixMilli(), info.PositionMS, info.State.String())
	if err != nil {
		slog.Error("failed to record progress sample", "error", err)
	}
}
