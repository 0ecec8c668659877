// Package booking implements the booking wizard: service, professional,
// date and time selection followed by confirmation.
package booking

import (
	"errors"
	"fmt"
	"slices"

	"studiotblack/internal/model"
)

// StepName identifies a wizard step.
type StepName string

const (
	StepProfessional StepName = "professional"
	StepDateTime     StepName = "datetime"
	StepSummary      StepName = "summary"
	StepSubmitted    StepName = "submitted"
)

var (
	ErrIllegalTransition   = errors.New("illegal transition")
	ErrServiceNotSelected  = errors.New("service not selected")
	ErrUnknownService      = errors.New("unknown service")
	ErrUnknownProfessional = errors.New("professional does not offer the selected service")
	ErrDateNotSelected     = errors.New("date not selected")
	ErrInvalidDate         = errors.New("invalid date")
	ErrSlotUnavailable     = errors.New("time slot not available")
	ErrStaleSlots          = errors.New("stale slot availability discarded")
	ErrSubmissionInFlight  = errors.New("booking submission already in progress")
	ErrAlreadySubmitted    = errors.New("booking already submitted")
)

// Step is the wizard state. The set of implementations is closed.
type Step interface {
	Name() StepName
	isStep()
}

// ProfessionalStep lists the professionals offering the chosen service.
// Service is nil until a service has been selected.
type ProfessionalStep struct {
	Service       *model.Service
	Professionals []model.Professional
}

// DateTimeStep waits for a date and then a time. Token identifies the
// latest slot fetch; results carrying any other token are discarded.
// Failed is set when the latest fetch for Date errored.
type DateTimeStep struct {
	Service      model.Service
	Professional model.Professional
	Choices      []model.Professional
	Date         string
	Available    []string
	Loading      bool
	Failed       bool
	Token        uint64
}

// SummaryStep holds a complete selection ready to be confirmed.
type SummaryStep struct {
	Service      model.Service
	Professional model.Professional
	Choices      []model.Professional
	Date         string
	Time         string
	Available    []string
}

// SubmittedStep is terminal until the flow is reset.
type SubmittedStep struct {
	Booking model.Booking
}

func (ProfessionalStep) Name() StepName { return StepProfessional }
func (DateTimeStep) Name() StepName     { return StepDateTime }
func (SummaryStep) Name() StepName      { return StepSummary }
func (SubmittedStep) Name() StepName    { return StepSubmitted }

func (ProfessionalStep) isStep() {}
func (DateTimeStep) isStep()     {}
func (SummaryStep) isStep()      {}
func (SubmittedStep) isStep()    {}

// Event drives a transition. The set of implementations is closed.
type Event interface {
	eventName() string
}

type serviceSelected struct {
	service       model.Service
	professionals []model.Professional
}

type professionalSelected struct{ id string }

type dateChanged struct {
	date  string
	token uint64
}

type slotsLoaded struct {
	token     uint64
	available []string
}

type slotsFailed struct{ token uint64 }

type timeSelected struct{ time string }

type wentBack struct{}

type submitted struct{ booking model.Booking }

type resetFlow struct{}

func (serviceSelected) eventName() string      { return "select_service" }
func (professionalSelected) eventName() string { return "select_professional" }
func (dateChanged) eventName() string          { return "change_date" }
func (slotsLoaded) eventName() string          { return "slots_loaded" }
func (slotsFailed) eventName() string          { return "slots_failed" }
func (timeSelected) eventName() string         { return "select_time" }
func (wentBack) eventName() string             { return "back" }
func (submitted) eventName() string            { return "submitted" }
func (resetFlow) eventName() string            { return "reset" }

// transition is the complete transition table of the wizard. It never
// mutates its input; on error the caller keeps the current step.
func transition(current Step, ev Event) (Step, error) {
	switch e := ev.(type) {
	case resetFlow:
		return ProfessionalStep{}, nil
	case serviceSelected:
		if _, done := current.(SubmittedStep); done {
			return current, ErrAlreadySubmitted
		}
		svc := e.service
		return ProfessionalStep{Service: &svc, Professionals: e.professionals}, nil
	}

	switch s := current.(type) {
	case ProfessionalStep:
		return fromProfessional(s, ev)
	case DateTimeStep:
		return fromDateTime(s, ev)
	case SummaryStep:
		return fromSummary(s, ev)
	case SubmittedStep:
		return current, ErrAlreadySubmitted
	}
	panic(fmt.Sprintf("booking: unknown step %T", current))
}

func fromProfessional(s ProfessionalStep, ev Event) (Step, error) {
	switch e := ev.(type) {
	case professionalSelected:
		if s.Service == nil {
			return s, ErrServiceNotSelected
		}
		idx := slices.IndexFunc(s.Professionals, func(p model.Professional) bool { return p.ID == e.id })
		if idx < 0 {
			return s, fmt.Errorf("%w: %s", ErrUnknownProfessional, e.id)
		}
		return DateTimeStep{
			Service:      *s.Service,
			Professional: s.Professionals[idx],
			Choices:      s.Professionals,
		}, nil
	case slotsLoaded, slotsFailed:
		return s, ErrStaleSlots
	}
	return s, illegal(s, ev)
}

func fromDateTime(s DateTimeStep, ev Event) (Step, error) {
	switch e := ev.(type) {
	case dateChanged:
		s.Date = e.date
		s.Available = nil
		s.Loading = true
		s.Failed = false
		s.Token = e.token
		return s, nil
	case slotsLoaded:
		if e.token != s.Token {
			return s, ErrStaleSlots
		}
		s.Available = e.available
		s.Loading = false
		s.Failed = false
		return s, nil
	case slotsFailed:
		if e.token != s.Token {
			return s, ErrStaleSlots
		}
		s.Loading = false
		s.Failed = true
		return s, nil
	case timeSelected:
		if s.Date == "" {
			return s, ErrDateNotSelected
		}
		if !slices.Contains(s.Available, e.time) {
			return s, fmt.Errorf("%w: %s", ErrSlotUnavailable, e.time)
		}
		return SummaryStep{
			Service:      s.Service,
			Professional: s.Professional,
			Choices:      s.Choices,
			Date:         s.Date,
			Time:         e.time,
			Available:    s.Available,
		}, nil
	case wentBack:
		svc := s.Service
		return ProfessionalStep{Service: &svc, Professionals: s.Choices}, nil
	}
	return s, illegal(s, ev)
}

func fromSummary(s SummaryStep, ev Event) (Step, error) {
	switch e := ev.(type) {
	case dateChanged:
		return DateTimeStep{
			Service:      s.Service,
			Professional: s.Professional,
			Choices:      s.Choices,
			Date:         e.date,
			Loading:      true,
			Token:        e.token,
		}, nil
	case wentBack:
		return DateTimeStep{
			Service:      s.Service,
			Professional: s.Professional,
			Choices:      s.Choices,
			Date:         s.Date,
			Available:    s.Available,
		}, nil
	case submitted:
		return SubmittedStep{Booking: e.booking}, nil
	case slotsLoaded, slotsFailed:
		return s, ErrStaleSlots
	}
	return s, illegal(s, ev)
}

func illegal(s Step, ev Event) error {
	return fmt.Errorf("%w: %s from %s", ErrIllegalTransition, ev.eventName(), s.Name())
}
