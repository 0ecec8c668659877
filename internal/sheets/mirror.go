// Package sheets mirrors bookings into a Google Sheets spreadsheet so the
// shop can follow the agenda without the admin tools.
package sheets

import (
	"context"
	"fmt"
	"sync"
	"time"

	"studiotblack/internal/events"
	"studiotblack/internal/metrics"
	"studiotblack/internal/model"

	"github.com/rs/zerolog"
)

// Header is the first row of the mirrored sheet.
var Header = []any{"ID", "Data", "Horário", "Cliente", "Profissional", "Serviço", "Status", "Valor", "Observações", "Atualizado em"}

// Mirror keeps one spreadsheet row per booking. Bus events are queued and
// written by a single worker so slow API calls never block a booking.
type Mirror struct {
	client Client
	logger *zerolog.Logger

	queue chan model.Booking
	wg    sync.WaitGroup

	mu       sync.Mutex
	rowCache map[string]int
}

func NewMirror(client Client, queueSize int, logger *zerolog.Logger) *Mirror {
	if queueSize <= 0 {
		queueSize = 256
	}
	l := logger.With().Str("component", "sheets").Logger()
	return &Mirror{
		client:   client,
		logger:   &l,
		queue:    make(chan model.Booking, queueSize),
		rowCache: make(map[string]int),
	}
}

// Handle is an events.Handler that queues the booking carried by e.
func (m *Mirror) Handle(_ context.Context, e events.Event) error {
	b, err := e.Booking()
	if err != nil {
		return fmt.Errorf("decode booking event: %w", err)
	}
	select {
	case m.queue <- b:
		return nil
	default:
		metrics.IncEventPublished("sheets", "dropped")
		return fmt.Errorf("sheets queue full, dropping booking %s", b.ID)
	}
}

// Start runs the worker until ctx is done, then drains the queue.
func (m *Mirror) Start(ctx context.Context) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			select {
			case b := <-m.queue:
				m.write(ctx, b)
			case <-ctx.Done():
				m.drain()
				return
			}
		}
	}()
}

// Wait blocks until the worker started by Start has exited.
func (m *Mirror) Wait() {
	m.wg.Wait()
}

func (m *Mirror) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for {
		select {
		case b := <-m.queue:
			m.write(ctx, b)
		default:
			return
		}
	}
}

func (m *Mirror) write(ctx context.Context, b model.Booking) {
	if err := m.Upsert(ctx, b); err != nil {
		metrics.IncEventPublished("sheets", "error")
		m.logger.Error().Err(err).Str("booking_id", b.ID).Msg("sheets upsert failed")
		return
	}
	metrics.IncEventPublished("sheets", "ok")
}

// Upsert updates the row of b or appends one.
func (m *Mirror) Upsert(ctx context.Context, b model.Booking) error {
	values := bookingRowValues(&b)

	row, ok := m.getCachedRow(b.ID)
	if !ok {
		var err error
		row, err = m.findRow(ctx, b.ID)
		if err != nil {
			return err
		}
	}
	if row > 0 {
		if err := m.client.UpdateRow(ctx, row, values); err != nil {
			m.deleteCachedRow(b.ID)
			return err
		}
		m.setCachedRow(b.ID, row)
		return nil
	}

	row, err := m.client.AppendRow(ctx, values)
	if err != nil {
		return err
	}
	if row > 0 {
		m.setCachedRow(b.ID, row)
	}
	return nil
}

// EnsureHeader writes Header into the first row when the sheet is empty.
func (m *Mirror) EnsureHeader(ctx context.Context) error {
	ids, err := m.client.ReadColumn(ctx, "A")
	if err != nil {
		return err
	}
	if len(ids) > 0 && ids[0] != "" {
		return nil
	}
	return m.client.UpdateRow(ctx, 1, Header)
}

func (m *Mirror) findRow(ctx context.Context, id string) (int, error) {
	ids, err := m.client.ReadColumn(ctx, "A")
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	row := 0
	for i, v := range ids {
		if i == 0 || v == "" {
			continue
		}
		m.rowCache[v] = i + 1
		if v == id {
			row = i + 1
		}
	}
	return row, nil
}

func bookingRowValues(b *model.Booking) []any {
	return []any{
		b.ID,
		b.Date,
		b.Time,
		b.UserID,
		b.ProfessionalID,
		b.ServiceID,
		string(b.Status),
		b.TotalPrice,
		b.Notes,
		b.UpdatedAt.Format("2006-01-02 15:04:05"),
	}
}

func (m *Mirror) getCachedRow(id string) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rowCache[id]
	return row, ok
}

func (m *Mirror) setCachedRow(id string, row int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rowCache[id] = row
}

func (m *Mirror) deleteCachedRow(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rowCache, id)
}

// ClearCache forgets every known row position.
func (m *Mirror) ClearCache() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rowCache = make(map[string]int)
}
