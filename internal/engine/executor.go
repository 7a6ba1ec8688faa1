// Package engine runs a single check cycle against the portal: pick a
// credential, open a session, scan, solve the CAPTCHA, book, and close.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"visa-slot-backend/config"
	"visa-slot-backend/internal/captcha"
	"visa-slot-backend/internal/metrics"
	"visa-slot-backend/internal/model"
	"visa-slot-backend/internal/portal"
	"visa-slot-backend/internal/store"
)

// CredentialPicker chooses the credential for the next cycle.
type CredentialPicker interface {
	Next(ctx context.Context) (model.Credential, error)
}

// CaptchaSolver selects the matching tiles of a challenge.
type CaptchaSolver interface {
	Resolve(ctx context.Context, target captcha.Target, tiles [][]byte, enhanced bool) captcha.Result
}

// Sink is the slice of the store a cycle writes to.
type Sink interface {
	store.LogSink
	InsertSlots(ctx context.Context, slots []model.AppointmentSlot) error
	TransitionSlot(ctx context.Context, id string, to model.SlotStatus, details datatypes.JSONMap) error
	GetCredential(ctx context.Context, id string) (model.Credential, error)
	RecordCredentialAttempt(ctx context.Context, id string, success bool, at time.Time) error
	PrimaryApplicant(ctx context.Context) (model.Applicant, error)
}

// Options bounds each step and toggles booking.
type Options struct {
	BookingEnabled  bool
	EnhancedCaptcha bool
	SessionTimeout  time.Duration
	ScanTimeout     time.Duration
	CaptchaTimeout  time.Duration
	BookingTimeout  time.Duration
	CloseTimeout    time.Duration
}

// OptionsFrom builds executor options from configuration.
func OptionsFrom(e config.EngineConfig, c config.CaptchaConfig) Options {
	return Options{
		BookingEnabled:  e.BookingEnabled,
		EnhancedCaptcha: c.Enhanced,
		SessionTimeout:  e.SessionTimeout,
		ScanTimeout:     e.ScanTimeout,
		CaptchaTimeout:  e.CaptchaTimeout,
		BookingTimeout:  e.BookingTimeout,
		CloseTimeout:    e.CloseTimeout,
	}
}

// CredentialCheck is the result of a connectivity test for one credential.
type CredentialCheck struct {
	Success      bool          `json:"success"`
	Message      string        `json:"message"`
	ResponseTime time.Duration `json:"-"`
}

type Executor struct {
	driver  portal.Driver
	picker  CredentialPicker
	solver  CaptchaSolver
	sink    Sink
	metrics *metrics.Collector
	opts    Options
	log     *zap.Logger
	now     func() time.Time
}

func New(driver portal.Driver, picker CredentialPicker, solver CaptchaSolver, sink Sink, m *metrics.Collector, opts Options, log *zap.Logger) *Executor {
	if m == nil {
		m = metrics.New(prometheus.NewRegistry())
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{
		driver:  driver,
		picker:  picker,
		solver:  solver,
		sink:    sink,
		metrics: m,
		opts:    opts,
		log:     log.With(zap.String("component", "engine")),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// RunOnce executes one cycle with the given settings. It never panics and never
// returns an error: every failure is reported through Outcome.Err and the log.
func (e *Executor) RunOnce(ctx context.Context, settings model.RunSettings) (out Outcome) {
	out.StartedAt = e.now()
	out.Slots = []model.AppointmentSlot{}
	defer func() {
		out.FinishedAt = e.now()
		e.metrics.ObserveCycle(out.Label(), out.Duration())
	}()

	cred, err := e.picker.Next(ctx)
	if err != nil {
		out.Err = err
		e.record(ctx, model.LevelWarning, StepSelectCredential, "No credential available, cycle skipped",
			datatypes.JSONMap{"error": err.Error()})
		return out
	}
	out.CredentialID = cred.ID
	e.record(ctx, model.LevelInfo, StepSelectCredential, fmt.Sprintf("Using credential %s", cred.Name),
		datatypes.JSONMap{"credential_id": cred.ID, "success_rate": cred.SuccessRate()})

	e.runSession(ctx, cred, settings, &out)
	e.account(ctx, cred.ID, &out)
	return out
}

// runSession drives the portal. The session is closed on every path out,
// including a panic raised by the driver.
func (e *Executor) runSession(ctx context.Context, cred model.Credential, settings model.RunSettings, out *Outcome) {
	var sess *portal.Session
	// step is the phase in progress, so a recovered panic is attributed to it.
	step := StepOpenSession
	defer func() {
		if r := recover(); r != nil {
			out.Err = &SessionError{Step: step, Err: fmt.Errorf("driver panic: %v", r)}
			e.record(ctx, model.LevelError, step, "Portal driver panicked",
				datatypes.JSONMap{"panic": fmt.Sprint(r)})
		}
		if sess != nil {
			e.closeSession(ctx, sess)
		}
	}()

	openCtx, cancel := context.WithTimeout(ctx, e.opts.SessionTimeout)
	s, err := e.driver.Open(openCtx, cred)
	cancel()
	if err != nil {
		out.Err = &SessionError{Step: StepOpenSession, Err: err}
		e.record(ctx, model.LevelError, StepOpenSession, "Failed to open portal session",
			datatypes.JSONMap{"credential_id": cred.ID, "error": err.Error()})
		return
	}
	sess = s
	e.record(ctx, model.LevelInfo, StepOpenSession, "Portal session opened",
		datatypes.JSONMap{"session_id": sess.ID})

	step = StepScanSlots
	slots, err := e.scan(ctx, sess, settings)
	if err != nil {
		out.Err = err
		return
	}
	out.Slots = slots
	if len(slots) == 0 || !e.opts.BookingEnabled {
		return
	}

	idx := -1
	for i, slot := range slots {
		if slot.Fits(settings.NumberOfMembers) {
			idx = i
			break
		}
	}
	if idx < 0 {
		e.record(ctx, model.LevelInfo, StepBookSlot,
			fmt.Sprintf("No slot has room for %d member(s), booking skipped", settings.NumberOfMembers), nil)
		return
	}

	step = StepBookSlot
	applicant, err := e.sink.PrimaryApplicant(ctx)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			out.Err = fmt.Errorf("load primary applicant: %w", err)
		}
		e.record(ctx, model.LevelWarning, StepBookSlot, "No primary applicant, booking skipped",
			datatypes.JSONMap{"error": err.Error()})
		return
	}

	step = StepCaptcha
	solved, err := e.solveCaptcha(ctx, sess)
	out.CaptchaSolved = solved
	if err != nil {
		out.Err = err
		return
	}

	step = StepBookSlot
	e.book(ctx, sess, cred, &out.Slots[idx], applicant, out)
}

func (e *Executor) scan(ctx context.Context, sess *portal.Session, settings model.RunSettings) ([]model.AppointmentSlot, error) {
	scanCtx, cancel := context.WithTimeout(ctx, e.opts.ScanTimeout)
	offers, err := e.driver.Scan(scanCtx, sess, portal.CriteriaFrom(settings))
	cancel()
	if err != nil {
		e.record(ctx, model.LevelError, StepScanSlots, "Slot scan failed", datatypes.JSONMap{"error": err.Error()})
		return nil, &SessionError{Step: StepScanSlots, Err: err}
	}

	foundAt := e.now()
	slots := make([]model.AppointmentSlot, 0, len(offers))
	for _, o := range offers {
		slot := model.AppointmentSlot{
			FoundAt:         foundAt,
			AppointmentDate: o.Date,
			AppointmentTime: o.Time,
			VisaType:        o.VisaType,
			VisaCategory:    o.VisaCategory,
			Location:        o.Location,
			AvailableSlots:  o.Capacity,
			Status:          model.SlotAvailable,
		}
		if o.Ref != "" {
			slot.BookingDetails = datatypes.JSONMap{"portal_ref": o.Ref}
		}
		slots = append(slots, slot)
	}

	if len(slots) == 0 {
		e.record(ctx, model.LevelInfo, StepScanSlots, "No available slots found", nil)
		return slots, nil
	}

	if err := e.sink.InsertSlots(context.WithoutCancel(ctx), slots); err != nil {
		e.record(ctx, model.LevelError, StepScanSlots, "Failed to record discovered slots",
			datatypes.JSONMap{"error": err.Error(), "count": len(slots)})
		return nil, fmt.Errorf("record slots: %w", err)
	}
	e.metrics.AddSlotsFound(len(slots))
	e.record(ctx, model.LevelSuccess, StepScanSlots, fmt.Sprintf("Found %d available slot(s)", len(slots)),
		datatypes.JSONMap{"count": len(slots), "first_date": slots[0].AppointmentDate})
	return slots, nil
}

// solveCaptcha handles the challenge shown before booking, if any. It reports
// whether a challenge was solved and submitted.
func (e *Executor) solveCaptcha(ctx context.Context, sess *portal.Session) (bool, error) {
	cctx, cancel := context.WithTimeout(ctx, e.opts.CaptchaTimeout)
	defer cancel()

	ch, err := e.driver.Captcha(cctx, sess)
	if err != nil {
		e.record(ctx, model.LevelError, StepCaptcha, "Failed to load CAPTCHA", datatypes.JSONMap{"error": err.Error()})
		return false, &SessionError{Step: StepCaptcha, Err: err}
	}
	if ch == nil {
		e.record(ctx, model.LevelInfo, StepCaptcha, "No CAPTCHA presented", nil)
		return false, nil
	}

	res := e.solver.Resolve(cctx, captcha.Target{Text: ch.TargetText, Image: ch.TargetImage}, ch.Tiles, e.opts.EnhancedCaptcha)
	e.metrics.ObserveCaptcha(res.Solved(), res.ProcessedTiles)
	details := datatypes.JSONMap{
		"target":           res.Target,
		"matching_indices": res.MatchingIndices,
		"processed_tiles":  res.ProcessedTiles,
		"tiles":            len(ch.Tiles),
	}
	if !res.Solved() {
		e.record(ctx, model.LevelWarning, StepCaptchaUnsolved, "CAPTCHA unsolved, booking skipped", details)
		return false, ErrCaptchaUnresolved
	}

	if err := e.driver.SubmitCaptcha(cctx, sess, res.MatchingIndices); err != nil {
		if errors.Is(err, portal.ErrRejected) {
			details["error"] = err.Error()
			e.record(ctx, model.LevelWarning, StepCaptchaUnsolved, "CAPTCHA answer rejected, booking skipped", details)
			return false, fmt.Errorf("%w: %v", ErrCaptchaUnresolved, err)
		}
		e.record(ctx, model.LevelError, StepCaptcha, "Failed to submit CAPTCHA", datatypes.JSONMap{"error": err.Error()})
		return false, &SessionError{Step: StepCaptcha, Err: err}
	}
	e.record(ctx, model.LevelInfo, StepCaptcha, "CAPTCHA solved", details)
	return true, nil
}

// book submits the booking on a context detached from ctx: once started it
// runs to a verdict even if the system is stopped meanwhile.
func (e *Executor) book(ctx context.Context, sess *portal.Session, cred model.Credential, slot *model.AppointmentSlot, applicant model.Applicant, out *Outcome) {
	bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.BookingTimeout)
	defer cancel()

	out.BookingAttempted = true
	res, err := e.driver.Book(bctx, sess, *slot, applicant)
	switch {
	case errors.Is(err, portal.ErrRejected):
		res = portal.BookingResult{Status: model.SlotFailed, Message: err.Error()}
		out.Err = fmt.Errorf("%w: %v", ErrBookingRejected, err)
	case err != nil:
		res = portal.BookingResult{Status: model.SlotFailed, Message: err.Error()}
		out.Err = &SessionError{Step: StepBookSlot, Err: err}
	case res.Status == model.SlotFailed:
		out.Err = fmt.Errorf("%w: %s", ErrBookingRejected, res.Message)
	}
	out.Booking = &res
	out.BookedSlotID = slot.ID

	details := datatypes.JSONMap{
		"credential_id": cred.ID,
		"applicant_id":  applicant.ID,
		"status":        string(res.Status),
	}
	for k, v := range slot.BookingDetails {
		details[k] = v
	}
	if res.Reference != "" {
		details["reference"] = res.Reference
	}
	if res.Message != "" {
		details["message"] = res.Message
	}

	if err := e.sink.TransitionSlot(bctx, slot.ID, res.Status, details); err != nil {
		e.log.Error("failed to update slot status", zap.String("slot_id", slot.ID), zap.Error(err))
	} else {
		slot.Status = res.Status
		slot.BookingDetails = details
	}
	e.metrics.ObserveBooking(res.Status)

	logDetails := datatypes.JSONMap{"slot_id": slot.ID, "date": slot.AppointmentDate, "time": slot.AppointmentTime}
	for k, v := range details {
		logDetails[k] = v
	}
	switch res.Status {
	case model.SlotBooked:
		e.record(ctx, model.LevelSuccess, StepBookSlot,
			fmt.Sprintf("Booked slot on %s at %s", slot.AppointmentDate, slot.AppointmentTime), logDetails)
	case model.SlotPending:
		e.record(ctx, model.LevelInfo, StepBookSlot, "Booking pending portal confirmation", logDetails)
	default:
		e.record(ctx, model.LevelError, StepBookSlot, "Booking failed", logDetails)
	}
}

func (e *Executor) closeSession(ctx context.Context, sess *portal.Session) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.CloseTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			e.record(ctx, model.LevelWarning, StepCloseSession, "Portal driver panicked on close",
				datatypes.JSONMap{"panic": fmt.Sprint(r)})
		}
	}()

	if err := e.driver.Close(cctx, sess); err != nil {
		e.record(ctx, model.LevelWarning, StepCloseSession, "Failed to close portal session",
			datatypes.JSONMap{"session_id": sess.ID, "error": err.Error()})
		return
	}
	e.record(ctx, model.LevelInfo, StepCloseSession, "Portal session closed", datatypes.JSONMap{"session_id": sess.ID})
}

// account records exactly one attempt for the credential used by the cycle.
func (e *Executor) account(ctx context.Context, credID string, out *Outcome) {
	success := !out.SessionFailed() && !errors.Is(out.Err, ErrBookingRejected)
	if err := e.sink.RecordCredentialAttempt(context.WithoutCancel(ctx), credID, success, e.now()); err != nil {
		e.log.Error("failed to record credential attempt", zap.String("credential_id", credID), zap.Error(err))
	}
	e.metrics.ObserveCredentialAttempt(success)
}

// TestCredential opens and immediately closes a session with the given credential.
func (e *Executor) TestCredential(ctx context.Context, id string) (CredentialCheck, error) {
	cred, err := e.sink.GetCredential(ctx, id)
	if err != nil {
		return CredentialCheck{}, err
	}

	start := e.now()
	openCtx, cancel := context.WithTimeout(ctx, e.opts.SessionTimeout)
	sess, err := e.driver.Open(openCtx, cred)
	cancel()
	check := CredentialCheck{ResponseTime: e.now().Sub(start)}
	if err != nil {
		check.Message = err.Error()
		e.record(ctx, model.LevelWarning, StepCredentialTest, fmt.Sprintf("Credential %s failed login test", cred.Name),
			datatypes.JSONMap{"credential_id": cred.ID, "error": err.Error()})
		return check, nil
	}
	e.closeSession(ctx, sess)

	check.Success = true
	check.Message = "Login succeeded"
	e.record(ctx, model.LevelInfo, StepCredentialTest, fmt.Sprintf("Credential %s passed login test", cred.Name),
		datatypes.JSONMap{"credential_id": cred.ID, "response_time_ms": check.ResponseTime.Milliseconds()})
	return check, nil
}

// record writes an audit entry and mirrors it to the process log.
func (e *Executor) record(ctx context.Context, level model.LogLevel, step, msg string, details datatypes.JSONMap) {
	fields := []zap.Field{zap.String("step", step)}
	for k, v := range details {
		fields = append(fields, zap.Any(k, v))
	}
	switch level {
	case model.LevelError:
		e.log.Error(msg, fields...)
	case model.LevelWarning:
		e.log.Warn(msg, fields...)
	default:
		e.log.Info(msg, fields...)
	}

	entry := &model.SystemLog{Level: level, Message: msg, Details: details, Step: step}
	if err := e.sink.AppendLog(context.WithoutCancel(ctx), entry); err != nil {
		e.log.Error("failed to append system log", zap.Error(err))
	}
}
