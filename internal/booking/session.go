package booking

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"studiotblack/internal/model"

	"github.com/rs/zerolog"
)

var ErrInvalidSnapshot = errors.New("invalid flow snapshot")

// Snapshot is the persisted form of a flow: the step with its selections,
// the preferences and the idempotency key.
type Snapshot struct {
	Step           StepName             `json:"step"`
	Service        *model.Service       `json:"service,omitempty"`
	Professionals  []model.Professional `json:"professionals,omitempty"`
	ProfessionalID string               `json:"professional_id,omitempty"`
	Date           string               `json:"date,omitempty"`
	Time           string               `json:"time,omitempty"`
	Available      []string             `json:"available,omitempty"`
	SlotsFailed    bool                 `json:"slots_failed,omitempty"`
	Silent         bool                 `json:"silent"`
	Notes          string               `json:"notes,omitempty"`
	IdempotencyKey string               `json:"idempotency_key"`
	Booking        *model.Booking       `json:"booking,omitempty"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

// Snapshot captures the current flow state.
func (f *Flow) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	snap := Snapshot{
		Step:           f.step.Name(),
		Silent:         f.silent,
		Notes:          f.notes,
		IdempotencyKey: f.key,
		UpdatedAt:      f.opts.Now(),
	}
	switch st := f.step.(type) {
	case ProfessionalStep:
		snap.Service = st.Service
		snap.Professionals = st.Professionals
	case DateTimeStep:
		svc := st.Service
		snap.Service = &svc
		snap.Professionals = st.Choices
		snap.ProfessionalID = st.Professional.ID
		snap.Date = st.Date
		snap.Available = st.Available
		snap.SlotsFailed = st.Failed
	case SummaryStep:
		svc := st.Service
		snap.Service = &svc
		snap.Professionals = st.Choices
		snap.ProfessionalID = st.Professional.ID
		snap.Date = st.Date
		snap.Time = st.Time
		snap.Available = st.Available
	case SubmittedStep:
		b := st.Booking
		snap.Booking = &b
	}
	return snap
}

// Restore replaces the flow state with snap. Pending slot fetches become stale.
func (f *Flow) Restore(snap Snapshot) error {
	step, err := snap.step()
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inFlight {
		return ErrSubmissionInFlight
	}
	f.token++
	if dt, ok := step.(DateTimeStep); ok {
		dt.Token = f.token
		step = dt
	}
	f.step = step
	f.silent = snap.Silent
	f.notes = snap.Notes
	if snap.IdempotencyKey != "" {
		f.key = snap.IdempotencyKey
	}
	return nil
}

func (s Snapshot) step() (Step, error) {
	pick := func() (model.Professional, error) {
		idx := slices.IndexFunc(s.Professionals, func(p model.Professional) bool { return p.ID == s.ProfessionalID })
		if idx < 0 {
			return model.Professional{}, fmt.Errorf("%w: professional %q not in choices", ErrInvalidSnapshot, s.ProfessionalID)
		}
		return s.Professionals[idx], nil
	}

	switch s.Step {
	case StepProfessional, "":
		return ProfessionalStep{Service: s.Service, Professionals: s.Professionals}, nil
	case StepDateTime:
		if s.Service == nil {
			return nil, fmt.Errorf("%w: datetime without service", ErrInvalidSnapshot)
		}
		pro, err := pick()
		if err != nil {
			return nil, err
		}
		return DateTimeStep{
			Service:      *s.Service,
			Professional: pro,
			Choices:      s.Professionals,
			Date:         s.Date,
			Available:    s.Available,
			Failed:       s.SlotsFailed,
		}, nil
	case StepSummary:
		if s.Service == nil || s.Date == "" || s.Time == "" {
			return nil, fmt.Errorf("%w: incomplete summary", ErrInvalidSnapshot)
		}
		pro, err := pick()
		if err != nil {
			return nil, err
		}
		return SummaryStep{
			Service:      *s.Service,
			Professional: pro,
			Choices:      s.Professionals,
			Date:         s.Date,
			Time:         s.Time,
			Available:    s.Available,
		}, nil
	case StepSubmitted:
		if s.Booking == nil {
			return nil, fmt.Errorf("%w: submitted without booking", ErrInvalidSnapshot)
		}
		return SubmittedStep{Booking: *s.Booking}, nil
	}
	return nil, fmt.Errorf("%w: unknown step %q", ErrInvalidSnapshot, s.Step)
}

// SnapshotStore persists flow snapshots. Load returns nil, nil when the key
// has no snapshot.
type SnapshotStore interface {
	Load(ctx context.Context, key string) (*Snapshot, error)
	Save(ctx context.Context, key string, snap Snapshot, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type session struct {
	flow      *Flow
	updatedAt time.Time
}

// SessionStore keeps one live flow per conversation key and mirrors each
// flow into a SnapshotStore so it survives restarts.
type SessionStore struct {
	mu        sync.RWMutex
	sessions  map[string]*session
	timeout   time.Duration
	newFlow   func() *Flow
	snapshots SnapshotStore
	logger    *zerolog.Logger
}

// NewSessionStore creates a session store. snapshots may be nil.
func NewSessionStore(newFlow func() *Flow, snapshots SnapshotStore, timeout time.Duration, logger *zerolog.Logger) *SessionStore {
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	return &SessionStore{
		sessions:  make(map[string]*session),
		timeout:   timeout,
		newFlow:   newFlow,
		snapshots: snapshots,
		logger:    logger,
	}
}

// Get returns the live flow for key, restoring it from its snapshot when
// it is not in memory.
func (ss *SessionStore) Get(ctx context.Context, key string) (*Flow, bool) {
	ss.mu.RLock()
	s, ok := ss.sessions[key]
	ss.mu.RUnlock()
	if ok && time.Since(s.updatedAt) <= ss.timeout {
		return s.flow, true
	}
	if ok {
		ss.Delete(ctx, key)
	}
	return ss.restore(ctx, key)
}

// GetOrCreate returns the flow for key or starts a new one.
func (ss *SessionStore) GetOrCreate(ctx context.Context, key string) *Flow {
	if f, ok := ss.Get(ctx, key); ok {
		return f
	}

	ss.mu.Lock()
	defer ss.mu.Unlock()
	if s, ok := ss.sessions[key]; ok {
		return s.flow
	}
	f := ss.newFlow()
	ss.sessions[key] = &session{flow: f, updatedAt: time.Now()}
	return f
}

// Save refreshes the idle timer of key and persists its snapshot.
func (ss *SessionStore) Save(ctx context.Context, key string) error {
	ss.mu.Lock()
	s, ok := ss.sessions[key]
	if ok {
		s.updatedAt = time.Now()
	}
	ss.mu.Unlock()
	if !ok {
		return fmt.Errorf("session %s: %w", key, model.ErrNotFound)
	}
	if ss.snapshots == nil {
		return nil
	}
	if err := ss.snapshots.Save(ctx, key, s.flow.Snapshot(), ss.timeout); err != nil {
		return fmt.Errorf("save snapshot %s: %w", key, err)
	}
	return nil
}

// Delete drops the live flow and its snapshot.
func (ss *SessionStore) Delete(ctx context.Context, key string) {
	ss.mu.Lock()
	delete(ss.sessions, key)
	ss.mu.Unlock()

	if ss.snapshots != nil {
		if err := ss.snapshots.Delete(ctx, key); err != nil {
			ss.logger.Warn().Err(err).Str("session", key).Msg("failed to delete flow snapshot")
		}
	}
}

// Cleanup removes expired live flows and returns how many were removed.
// Snapshots expire on their own TTL.
func (ss *SessionStore) Cleanup() int {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	removed := 0
	for key, s := range ss.sessions {
		if time.Since(s.updatedAt) > ss.timeout {
			delete(ss.sessions, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of live flows.
func (ss *SessionStore) Len() int {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	return len(ss.sessions)
}

func (ss *SessionStore) restore(ctx context.Context, key string) (*Flow, bool) {
	if ss.snapshots == nil {
		return nil, false
	}
	snap, err := ss.snapshots.Load(ctx, key)
	if err != nil {
		ss.logger.Warn().Err(err).Str("session", key).Msg("failed to load flow snapshot")
		return nil, false
	}
	if snap == nil {
		return nil, false
	}

	f := ss.newFlow()
	if err := f.Restore(*snap); err != nil {
		ss.logger.Warn().Err(err).Str("session", key).Msg("discarding unusable flow snapshot")
		_ = ss.snapshots.Delete(ctx, key)
		return nil, false
	}

	ss.mu.Lock()
	defer ss.mu.Unlock()
	if s, ok := ss.sessions[key]; ok {
		return s.flow, true
	}
	ss.sessions[key] = &session{flow: f, updatedAt: time.Now()}
	return f, true
}
