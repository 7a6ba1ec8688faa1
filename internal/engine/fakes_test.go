package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/datatypes"

	"visa-slot-backend/internal/captcha"
	"visa-slot-backend/internal/model"
	"visa-slot-backend/internal/portal"
	"visa-slot-backend/internal/selector"
	"visa-slot-backend/internal/store"
)

// fakeDriver is a portal.Driver whose behaviour is set per test through func fields.
type fakeDriver struct {
	mu     sync.Mutex
	closed int

	OpenFunc          func(ctx context.Context, cred model.Credential) (*portal.Session, error)
	ScanFunc          func(ctx context.Context, s *portal.Session, c portal.Criteria) ([]portal.SlotOffer, error)
	CaptchaFunc       func(ctx context.Context, s *portal.Session) (*portal.Challenge, error)
	SubmitCaptchaFunc func(ctx context.Context, s *portal.Session, indices []int) error
	BookFunc          func(ctx context.Context, s *portal.Session, slot model.AppointmentSlot, a model.Applicant) (portal.BookingResult, error)
	CloseFunc         func(ctx context.Context, s *portal.Session) error
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		OpenFunc: func(_ context.Context, cred model.Credential) (*portal.Session, error) {
			return &portal.Session{ID: "sess-" + cred.ID, CredentialID: cred.ID}, nil
		},
		ScanFunc: func(context.Context, *portal.Session, portal.Criteria) ([]portal.SlotOffer, error) {
			return nil, nil
		},
		CaptchaFunc: func(context.Context, *portal.Session) (*portal.Challenge, error) {
			return nil, nil
		},
		SubmitCaptchaFunc: func(context.Context, *portal.Session, []int) error { return nil },
		BookFunc: func(context.Context, *portal.Session, model.AppointmentSlot, model.Applicant) (portal.BookingResult, error) {
			return portal.BookingResult{Status: model.SlotBooked, Reference: "REF"}, nil
		},
	}
}

func (d *fakeDriver) Open(ctx context.Context, cred model.Credential) (*portal.Session, error) {
	return d.OpenFunc(ctx, cred)
}

func (d *fakeDriver) Scan(ctx context.Context, s *portal.Session, c portal.Criteria) ([]portal.SlotOffer, error) {
	return d.ScanFunc(ctx, s, c)
}

func (d *fakeDriver) Captcha(ctx context.Context, s *portal.Session) (*portal.Challenge, error) {
	return d.CaptchaFunc(ctx, s)
}

func (d *fakeDriver) SubmitCaptcha(ctx context.Context, s *portal.Session, indices []int) error {
	return d.SubmitCaptchaFunc(ctx, s, indices)
}

func (d *fakeDriver) Book(ctx context.Context, s *portal.Session, slot model.AppointmentSlot, a model.Applicant) (portal.BookingResult, error) {
	return d.BookFunc(ctx, s, slot, a)
}

func (d *fakeDriver) Close(ctx context.Context, s *portal.Session) error {
	d.mu.Lock()
	d.closed++
	d.mu.Unlock()
	if d.CloseFunc != nil {
		return d.CloseFunc(ctx, s)
	}
	return nil
}

func (d *fakeDriver) closeCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

type pickerFunc func(ctx context.Context) (model.Credential, error)

func (f pickerFunc) Next(ctx context.Context) (model.Credential, error) { return f(ctx) }

func fixedPicker(c model.Credential) pickerFunc {
	return func(context.Context) (model.Credential, error) { return c, nil }
}

func noCredentials() pickerFunc {
	return func(context.Context) (model.Credential, error) {
		return model.Credential{}, selector.ErrNoCredentialAvailable
	}
}

type solverFunc func(ctx context.Context, target captcha.Target, tiles [][]byte, enhanced bool) captcha.Result

func (f solverFunc) Resolve(ctx context.Context, target captcha.Target, tiles [][]byte, enhanced bool) captcha.Result {
	return f(ctx, target, tiles, enhanced)
}

type attempt struct {
	id      string
	success bool
}

// memSink is an in-memory Sink.
type memSink struct {
	mu        sync.Mutex
	logs      []model.SystemLog
	slots     []model.AppointmentSlot
	attempts  []attempt
	creds     map[string]model.Credential
	applicant *model.Applicant
	nextID    int
}

func newMemSink() *memSink {
	return &memSink{creds: map[string]model.Credential{}}
}

func (m *memSink) AppendLog(_ context.Context, entry *model.SystemLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, *entry)
	return nil
}

func (m *memSink) InsertSlots(_ context.Context, slots []model.AppointmentSlot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range slots {
		m.nextID++
		slots[i].ID = fmt.Sprintf("slot-%d", m.nextID)
		m.slots = append(m.slots, slots[i])
	}
	return nil
}

func (m *memSink) TransitionSlot(_ context.Context, id string, to model.SlotStatus, details datatypes.JSONMap) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.slots {
		if m.slots[i].ID != id {
			continue
		}
		if !m.slots[i].Status.CanTransitionTo(to) {
			return store.ErrSlotTransition
		}
		m.slots[i].Status = to
		m.slots[i].BookingDetails = details
		return nil
	}
	return store.ErrNotFound
}

func (m *memSink) GetCredential(_ context.Context, id string) (model.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.creds[id]
	if !ok {
		return model.Credential{}, store.ErrNotFound
	}
	return c, nil
}

func (m *memSink) RecordCredentialAttempt(_ context.Context, id string, success bool, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, attempt{id: id, success: success})
	return nil
}

func (m *memSink) PrimaryApplicant(context.Context) (model.Applicant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.applicant == nil {
		return model.Applicant{}, store.ErrNotFound
	}
	return *m.applicant, nil
}

func (m *memSink) steps() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.logs))
	for _, l := range m.logs {
		out = append(out, l.Step)
	}
	return out
}

func (m *memSink) logFor(step string) (model.SystemLog, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.logs {
		if l.Step == step {
			return l, true
		}
	}
	return model.SystemLog{}, false
}

func (m *memSink) slot(id string) model.AppointmentSlot {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.slots {
		if s.ID == id {
			return s
		}
	}
	return model.AppointmentSlot{}
}
