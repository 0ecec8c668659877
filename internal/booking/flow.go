package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"studiotblack/internal/metrics"
	"studiotblack/internal/model"
	"studiotblack/internal/slots"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Directory lists the bookable catalog.
type Directory interface {
	ListServices(ctx context.Context) ([]model.Service, error)
	ListProfessionals(ctx context.Context) ([]model.Professional, error)
}

// Schedule reports the times already taken for a professional on a date.
type Schedule interface {
	OccupiedSlots(ctx context.Context, professionalID, date string) ([]string, error)
}

// Bookings persists new bookings.
type Bookings interface {
	CreateBooking(ctx context.Context, nb model.NewBooking) (*model.Booking, error)
}

// NotificationScheduler schedules the confirmation and reminder
// notifications of a booking.
type NotificationScheduler interface {
	ScheduleBooking(ctx context.Context, b model.Booking) error
}

// Backend is the full accessor surface used by the flow.
type Backend interface {
	Directory
	Schedule
	Bookings
}

// Deps are the collaborators of a Flow. Notifications is optional.
type Deps struct {
	Directory     Directory
	Schedule      Schedule
	Bookings      Bookings
	Notifications NotificationScheduler
	Logger        *zerolog.Logger
}

// Options tune slot computation and the submitted record.
type Options struct {
	Candidates          []string
	Location            *time.Location
	MinAdvance          time.Duration
	RespectWorkingHours bool
	PaymentMethod       string
	Now                 func() time.Time
}

// Flow is the booking wizard of one customer. It is safe for concurrent use.
type Flow struct {
	deps Deps
	opts Options

	mu         sync.Mutex
	step       Step
	silent     bool
	notes      string
	key        string
	token      uint64
	inFlight   bool
	onComplete func(model.Booking)
}

// NewFlow creates a flow at its initial step.
func NewFlow(deps Deps, opts Options) *Flow {
	opts = opts.withDefaults()
	if deps.Logger == nil {
		l := zerolog.Nop()
		deps.Logger = &l
	}
	return &Flow{
		deps: deps,
		opts: opts,
		step: ProfessionalStep{},
		key:  uuid.NewString(),
	}
}

// OnComplete registers the callback invoked after a successful confirmation.
func (f *Flow) OnComplete(fn func(model.Booking)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onComplete = fn
}

// Step returns the current step.
func (f *Flow) Step() Step {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.step
}

// Preferences returns the silent-service flag and the notes.
func (f *Flow) Preferences() (silent bool, notes string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.silent, f.notes
}

// IdempotencyKey identifies the booking this flow will submit.
func (f *Flow) IdempotencyKey() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.key
}

// Candidates returns the fixed candidate slot list.
func (f *Flow) Candidates() []string {
	return f.opts.Candidates
}

// SelectService loads the professionals offering svc and moves to the
// professional step. On failure the state is unchanged.
func (f *Flow) SelectService(ctx context.Context, svc model.Service) error {
	if err := f.checkEditable(); err != nil {
		return err
	}

	all, err := f.deps.Directory.ListProfessionals(ctx)
	if err != nil {
		f.log(ctx).Error().Err(err).Str("service_id", svc.ID).Msg("list professionals failed")
		return remoteError("list professionals", err)
	}
	pros := model.OfferingService(all, svc.ID)

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.apply(serviceSelected{service: svc, professionals: pros})
}

// SelectServiceByID resolves an active service by id and selects it.
func (f *Flow) SelectServiceByID(ctx context.Context, id string) error {
	services, err := f.deps.Directory.ListServices(ctx)
	if err != nil {
		return remoteError("list services", err)
	}
	for _, s := range services {
		if s.ID == id && s.Active {
			return f.SelectService(ctx, s)
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownService, id)
}

// SelectProfessional records the professional and moves to the date step.
func (f *Flow) SelectProfessional(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.apply(professionalSelected{id: id})
}

// ChangeDate records date, clears any chosen time and loads availability.
// It returns ErrStaleSlots when a newer fetch superseded this one.
func (f *Flow) ChangeDate(ctx context.Context, date string) ([]string, error) {
	if _, err := time.Parse(model.DateLayout, date); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}

	f.mu.Lock()
	f.token++
	tok := f.token
	if err := f.apply(dateChanged{date: date, token: tok}); err != nil {
		f.mu.Unlock()
		return nil, err
	}
	pro := f.step.(DateTimeStep).Professional
	f.mu.Unlock()

	return f.fetchSlots(ctx, tok, pro, date)
}

// RefreshSlots reloads availability for the current date.
func (f *Flow) RefreshSlots(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	st, ok := f.step.(DateTimeStep)
	if !ok {
		f.mu.Unlock()
		return nil, fmt.Errorf("%w: refresh from %s", ErrIllegalTransition, f.step.Name())
	}
	if st.Date == "" {
		f.mu.Unlock()
		return nil, ErrDateNotSelected
	}
	f.token++
	tok := f.token
	if err := f.apply(dateChanged{date: st.Date, token: tok}); err != nil {
		f.mu.Unlock()
		return nil, err
	}
	f.mu.Unlock()

	return f.fetchSlots(ctx, tok, st.Professional, st.Date)
}

func (f *Flow) fetchSlots(ctx context.Context, tok uint64, pro model.Professional, date string) ([]string, error) {
	l := f.log(ctx).With().Str("professional_id", pro.ID).Str("date", date).Uint64("token", tok).Logger()

	occupied, err := f.deps.Schedule.OccupiedSlots(ctx, pro.ID, date)
	if err != nil {
		f.mu.Lock()
		applyErr := f.apply(slotsFailed{token: tok})
		f.mu.Unlock()
		if errors.Is(applyErr, ErrStaleSlots) {
			metrics.IncSlotFetch("stale")
			return nil, ErrStaleSlots
		}
		metrics.IncSlotFetch("error")
		l.Error().Err(err).Msg("occupied slots fetch failed")
		return nil, remoteError("occupied slots", err)
	}

	available := f.availableSlots(date, pro, occupied)

	f.mu.Lock()
	err = f.apply(slotsLoaded{token: tok, available: available})
	f.mu.Unlock()
	if err != nil {
		if errors.Is(err, ErrStaleSlots) {
			metrics.IncSlotFetch("stale")
			l.Debug().Msg("discarding superseded slot availability")
		}
		return nil, err
	}

	metrics.IncSlotFetch("ok")
	return available, nil
}

func (f *Flow) availableSlots(date string, pro model.Professional, occupied []string) []string {
	return AvailableSlots(f.opts, date, pro, occupied)
}

// AvailableSlots returns the candidates of opts not in occupied, narrowed
// to the professional's working hours and the minimum advance when opts
// ask for it.
func AvailableSlots(opts Options, date string, pro model.Professional, occupied []string) []string {
	opts = opts.withDefaults()
	list := slots.Available(opts.Candidates, occupied)
	if opts.RespectWorkingHours {
		if day, err := time.ParseInLocation(model.DateLayout, date, opts.Location); err == nil {
			list = slots.WithinWorkingHours(list, pro.WorkingHours, day.Weekday())
		}
	}
	if opts.MinAdvance > 0 {
		list = slots.NotBefore(list, date, opts.Now().Add(opts.MinAdvance), opts.Location)
	}
	return list
}

func (o Options) withDefaults() Options {
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if len(o.Candidates) == 0 {
		o.Candidates, _ = slots.Candidates(slots.DefaultSchedule())
	}
	if o.PaymentMethod == "" {
		o.PaymentMethod = "local"
	}
	return o
}

// SelectTime records the time and moves to the summary step.
func (f *Flow) SelectTime(hhmm string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.apply(timeSelected{time: slots.Normalize(hhmm)})
}

// Back moves one step backwards: from datetime it clears professional,
// date and time; from summary it clears only the time.
func (f *Flow) Back() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.apply(wentBack{})
}

// SetPreferences stores the silent-service flag and free-form notes.
func (f *Flow) SetPreferences(silent bool, notes string) error {
	if err := f.checkEditable(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.silent = silent
	f.notes = notes
	return nil
}

// Reset returns every field to its initial value. Pending slot fetches
// become stale and a new idempotency key is issued.
func (f *Flow) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.apply(resetFlow{}); err != nil {
		return err
	}
	f.token++
	f.silent = false
	f.notes = ""
	f.key = uuid.NewString()
	return nil
}

// Confirm validates the selection and submits exactly one booking. The
// notification scheduler is called once on success; its failure is only
// logged.
func (f *Flow) Confirm(ctx context.Context, userID string) (*model.Booking, error) {
	f.mu.Lock()
	if f.inFlight {
		f.mu.Unlock()
		return nil, ErrSubmissionInFlight
	}
	if _, done := f.step.(SubmittedStep); done {
		f.mu.Unlock()
		return nil, ErrAlreadySubmitted
	}
	sel := selectionOf(f.step)
	if missing := sel.missing(userID); len(missing) > 0 {
		f.mu.Unlock()
		metrics.IncFlowTransition("confirm", "invalid")
		return nil, &ValidationError{Missing: missing}
	}
	rec := model.NewBooking{
		UserID:         userID,
		ProfessionalID: sel.professionalID,
		ServiceID:      sel.service.ID,
		Date:           sel.date,
		Time:           sel.time,
		Notes:          BuildNotes(*sel.service, f.silent, f.notes),
		TotalPrice:     sel.service.Price,
		PaymentMethod:  f.opts.PaymentMethod,
		PaymentStatus:  "pending",
		IdempotencyKey: f.key,
	}
	f.inFlight = true
	cb := f.onComplete
	f.mu.Unlock()

	l := f.log(ctx).With().Str("user_id", userID).Str("idempotency_key", rec.IdempotencyKey).Logger()

	created, err := f.deps.Bookings.CreateBooking(ctx, rec)

	f.mu.Lock()
	f.inFlight = false
	if err != nil {
		f.mu.Unlock()
		metrics.IncFlowTransition("confirm", "failed")
		l.Error().Err(err).Msg("create booking failed")
		return nil, remoteError("create booking", err)
	}
	if applyErr := f.apply(submitted{booking: *created}); applyErr != nil {
		l.Warn().Err(applyErr).Msg("flow changed during submission")
	}
	f.mu.Unlock()

	l.Info().Str("booking_id", created.ID).Msg("booking created")

	if f.deps.Notifications != nil {
		if nErr := f.deps.Notifications.ScheduleBooking(ctx, *created); nErr != nil {
			l.Warn().Err(nErr).Str("booking_id", created.ID).Msg("failed to schedule booking notifications")
		}
	}
	if cb != nil {
		cb(*created)
	}
	return created, nil
}

func (f *Flow) checkEditable() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inFlight {
		return ErrSubmissionInFlight
	}
	if _, done := f.step.(SubmittedStep); done {
		return ErrAlreadySubmitted
	}
	return nil
}

// apply runs the transition for ev; f.mu must be held.
func (f *Flow) apply(ev Event) error {
	if f.inFlight {
		switch ev.(type) {
		case submitted:
		case slotsLoaded, slotsFailed:
			return ErrStaleSlots
		default:
			return ErrSubmissionInFlight
		}
	}
	next, err := transition(f.step, ev)
	if err != nil {
		outcome := "rejected"
		if errors.Is(err, ErrStaleSlots) {
			outcome = "stale"
		}
		metrics.IncFlowTransition(ev.eventName(), outcome)
		return err
	}
	metrics.IncFlowTransition(ev.eventName(), "ok")
	f.step = next
	return nil
}

func (f *Flow) log(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return f.deps.Logger
}

type selection struct {
	service        *model.Service
	professionalID string
	date           string
	time           string
}

func selectionOf(s Step) selection {
	switch st := s.(type) {
	case ProfessionalStep:
		return selection{service: st.Service}
	case DateTimeStep:
		svc := st.Service
		return selection{service: &svc, professionalID: st.Professional.ID, date: st.Date}
	case SummaryStep:
		svc := st.Service
		return selection{service: &svc, professionalID: st.Professional.ID, date: st.Date, time: st.Time}
	}
	return selection{}
}

func (s selection) missing(userID string) []string {
	var out []string
	if userID == "" {
		out = append(out, "user_id")
	}
	if s.professionalID == "" {
		out = append(out, "professional_id")
	}
	if s.service == nil || s.service.ID == "" {
		out = append(out, "service_id")
	}
	if s.date == "" {
		out = append(out, "date")
	}
	if s.time == "" {
		out = append(out, "time")
	}
	return out
}
