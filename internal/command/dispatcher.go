package command

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"timebot/internal/attendance"
	"timebot/internal/domain"
	"timebot/internal/feature/reset"
	"timebot/internal/logging"
	"timebot/internal/metrics"
)

const (
	outcomeOK       = "ok"
	outcomeRejected = "rejected"
	outcomeUnknown  = "unknown"
	outcomeError    = "error"

	// unknownCommandLabel keeps free-form text out of metric labels.
	unknownCommandLabel = "other"
)

// rejection is a user-facing refusal; its text is posted as the reply.
type rejection struct {
	text string
}

func (r rejection) Error() string { return r.text }

func reject(text string) error { return rejection{text: text} }

type handler func(d *Dispatcher, ctx context.Context, msg Message, args []string) error

type route struct {
	directOnly bool
	run        handler
}

var routes = map[string]route{
	"!in":           {directOnly: true, run: (*Dispatcher).clockIn},
	"!intime":       {directOnly: true, run: (*Dispatcher).clockInLate},
	"!out":          {directOnly: true, run: (*Dispatcher).clockOut},
	"!outtime":      {directOnly: true, run: (*Dispatcher).clockOutHours},
	"!active":       {directOnly: true, run: (*Dispatcher).markActive},
	"!inactive":     {directOnly: true, run: (*Dispatcher).markInactive},
	"!status":       {directOnly: true, run: (*Dispatcher).status},
	"!addme":        {directOnly: true, run: (*Dispatcher).addMe},
	"!!reset":       {directOnly: true, run: (*Dispatcher).reset},
	"!standings":    {run: (*Dispatcher).standings},
	"!lateweek":     {run: totalsHandler(lateWeekText)},
	"!latesemester": {run: totalsHandler(lateSemesterText)},
	"!workweek":     {run: totalsHandler(workWeekText)},
	"!worksemester": {run: totalsHandler(workSemesterText)},
	"!attendance":   {run: (*Dispatcher).absentees},
	"!usage":        {run: (*Dispatcher).usage},
}

// Dispatcher routes commands to their handlers. Handlers run one at a time.
type Dispatcher struct {
	mu         sync.Mutex
	attendance Attendance
	resetter   Resetter
	replier    Replier
	directory  Directory
	logger     *logrus.Entry
}

// NewDispatcher wires a Dispatcher. directory may be nil, in which case the
// message's user name is used for registration.
func NewDispatcher(att Attendance, resetter Resetter, replier Replier, directory Directory, logger *logrus.Entry) *Dispatcher {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Dispatcher{
		attendance: att,
		resetter:   resetter,
		replier:    replier,
		directory:  directory,
		logger:     logger,
	}
}

// Handle dispatches one message. Failures are reported to the sender and
// logged; Handle never panics.
func (d *Dispatcher) Handle(ctx context.Context, msg Message) {
	if d == nil || d.replier == nil {
		logging.WithContext(logging.Context{
			MemberID: msg.User,
			Channel:  msg.Channel,
			Event:    "dispatch_skipped",
		}).Warn("dispatcher is not initialized")
		return
	}
	if !Accepts(msg.Text) {
		return
	}

	msg.Text = Normalize(msg.Text)
	fields := strings.Fields(msg.Text)
	name := fields[0]

	logger := d.logger.WithFields(logging.Fields{
		"member_id": msg.User,
		"channel":   msg.Channel,
		"command":   name,
	})

	r, ok := routes[name]
	if !ok || (r.directOnly && !msg.Direct) {
		label := name
		if !ok {
			label = unknownCommandLabel
		}
		metrics.ObserveCommand(label, outcomeUnknown)
		logger.WithField("event", "command_unknown").Debug("unrecognised command")
		d.post(ctx, logger, msg.Channel, notUnderstood(msg.Text, msg.Direct))
		return
	}

	err := d.run(ctx, r.run, msg, fields[1:])

	var rej rejection
	switch {
	case err == nil:
		metrics.ObserveCommand(name, outcomeOK)
		logger.WithField("event", "command_handled").Debug("handled command")
	case errors.As(err, &rej):
		metrics.ObserveCommand(name, outcomeRejected)
		logger.WithFields(logging.Fields{
			"event":  "command_rejected",
			"reason": rej.text,
		}).Info("rejected command")
		d.post(ctx, logger, msg.Channel, rej.text)
	default:
		metrics.ObserveCommand(name, outcomeError)
		logger.WithFields(logging.Fields{
			"event": "command_failed",
			"error": err.Error(),
		}).Error("command failed")
		d.post(ctx, logger, msg.Channel, replyCrash)
	}
}

func (d *Dispatcher) run(ctx context.Context, h handler, msg Message, args []string) (err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("panic: %v", recovered)
		}
	}()
	return h(d, ctx, msg, args)
}

// Serialized returns a Resetter that shares the dispatcher's lock, so a reset
// triggered outside chat never interleaves with a command.
func (d *Dispatcher) Serialized() Resetter {
	return serializedResetter{d: d}
}

type serializedResetter struct {
	d *Dispatcher
}

func (s serializedResetter) Authorize(ctx context.Context, memberID string) error {
	return s.d.resetter.Authorize(ctx, memberID)
}

func (s serializedResetter) Reset(ctx context.Context, actor, trigger string) (domain.ResetRecord, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	return s.d.resetter.Reset(ctx, actor, trigger)
}

func (d *Dispatcher) post(ctx context.Context, logger *logrus.Entry, channel, text string) {
	if err := d.replier.Post(ctx, channel, text); err != nil {
		logger.WithFields(logging.Fields{
			"event": "reply_failed",
			"error": err.Error(),
		}).Warn("failed to post reply")
	}
}

func (d *Dispatcher) say(ctx context.Context, msg Message, text string) error {
	if err := d.replier.Post(ctx, msg.Channel, text); err != nil {
		return fmt.Errorf("post reply: %w", err)
	}
	return nil
}

func (d *Dispatcher) react(ctx context.Context, msg Message, reaction Reaction) error {
	if err := d.replier.React(ctx, msg, reaction); err != nil {
		return fmt.Errorf("add reaction: %w", err)
	}
	return nil
}

func (d *Dispatcher) clockIn(ctx context.Context, msg Message, _ []string) error {
	if containsDigit(msg.Text) {
		return reject(replyDidYouMeanIn)
	}

	result, err := d.attendance.ClockIn(ctx, msg.User)
	switch {
	case errors.Is(err, attendance.ErrNotEligible):
		return reject(replyNotActive)
	case errors.Is(err, attendance.ErrAlreadyClockedIn):
		return reject(replyAlreadyIn)
	case err != nil:
		return err
	}

	return d.ackClockIn(ctx, msg, result)
}

func (d *Dispatcher) clockInLate(ctx context.Context, msg Message, args []string) error {
	if len(args) == 0 {
		return reject(replyInTimeUsage)
	}
	minutes, err := strconv.Atoi(args[0])
	if err != nil {
		return reject(replyInTimeUsage)
	}

	result, err := d.attendance.ClockInLate(ctx, msg.User, minutes)
	switch {
	case errors.Is(err, attendance.ErrInvalidMinutes):
		return reject(replyInTimeUsage)
	case errors.Is(err, attendance.ErrNotEligible):
		return reject(replyNotActiveShort)
	case errors.Is(err, attendance.ErrAlreadyClockedIn):
		return reject(replyAlreadyInToday)
	case err != nil:
		return err
	}

	return d.ackClockIn(ctx, msg, result)
}

func (d *Dispatcher) ackClockIn(ctx context.Context, msg Message, result attendance.ClockInResult) error {
	if result.Weekend {
		if err := d.say(ctx, msg, replyWeekend); err != nil {
			return err
		}
	}
	return d.react(ctx, msg, ReactionAck)
}

func (d *Dispatcher) clockOut(ctx context.Context, msg Message, _ []string) error {
	if containsDigit(msg.Text) {
		return reject(replyDidYouMeanOut)
	}

	_, err := d.attendance.ClockOut(ctx, msg.User)
	if err := clockOutRejection(err); err != nil {
		return err
	}
	return d.react(ctx, msg, ReactionAck)
}

func (d *Dispatcher) clockOutHours(ctx context.Context, msg Message, args []string) error {
	if len(args) == 0 {
		return reject(replyOutTimeUsage)
	}
	hours, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return reject(replyOutTimeUsage)
	}

	_, err = d.attendance.ClockOutHours(ctx, msg.User, hours)
	if errors.Is(err, attendance.ErrInvalidHours) {
		return reject(replyOutTimeUsage)
	}
	if err := clockOutRejection(err); err != nil {
		return err
	}
	return d.react(ctx, msg, ReactionAck)
}

func clockOutRejection(err error) error {
	switch {
	case errors.Is(err, attendance.ErrNotEligible):
		return reject(replyNotActive)
	case errors.Is(err, attendance.ErrAlreadyClockedOut):
		return reject(replyAlreadyOut)
	default:
		return err
	}
}

func (d *Dispatcher) markActive(ctx context.Context, msg Message, _ []string) error {
	return d.setActive(ctx, msg, true)
}

func (d *Dispatcher) markInactive(ctx context.Context, msg Message, _ []string) error {
	return d.setActive(ctx, msg, false)
}

func (d *Dispatcher) setActive(ctx context.Context, msg Message, active bool) error {
	err := d.attendance.SetActive(ctx, msg.User, active)
	if errors.Is(err, attendance.ErrNotRegistered) {
		return reject(replyNotRegistered)
	}
	if err != nil {
		return err
	}
	return d.react(ctx, msg, ReactionDone)
}

func (d *Dispatcher) status(ctx context.Context, msg Message, _ []string) error {
	member, err := d.attendance.Status(ctx, msg.User)
	if errors.Is(err, attendance.ErrNotRegistered) {
		return reject(replyNotRegistered)
	}
	if err != nil {
		return err
	}
	return d.say(ctx, msg, statusText(member))
}

func (d *Dispatcher) addMe(ctx context.Context, msg Message, _ []string) error {
	name := msg.UserName
	if d.directory != nil {
		resolved, err := d.directory.DisplayName(ctx, msg.User)
		if err != nil {
			return fmt.Errorf("resolve display name: %w", err)
		}
		if resolved != "" {
			name = resolved
		}
	}

	_, err := d.attendance.Register(ctx, msg.User, name)
	if errors.Is(err, attendance.ErrAlreadyRegistered) {
		return reject(replyAlreadyMember)
	}
	if err != nil {
		return err
	}
	if err := d.react(ctx, msg, ReactionAck); err != nil {
		return err
	}

	return d.setActive(ctx, msg, true)
}

func (d *Dispatcher) reset(ctx context.Context, msg Message, _ []string) error {
	if d.resetter == nil {
		return errors.New("resetter is not configured")
	}

	err := d.resetter.Authorize(ctx, msg.User)
	if errors.Is(err, reset.ErrNotAdmin) {
		return reject(replyResetForbidden)
	}
	if err != nil {
		return err
	}

	if _, err := d.resetter.Reset(ctx, msg.User, "command"); err != nil {
		return err
	}
	return d.say(ctx, msg, replyResetDone)
}

func (d *Dispatcher) standings(ctx context.Context, msg Message, _ []string) error {
	members, err := d.attendance.Standings(ctx)
	if err != nil {
		return err
	}
	return d.say(ctx, msg, standingsText(members))
}

func totalsHandler(render func(attendance.Totals) string) handler {
	return func(d *Dispatcher, ctx context.Context, msg Message, _ []string) error {
		totals, err := d.attendance.Totals(ctx)
		if err != nil {
			return err
		}
		return d.say(ctx, msg, render(totals))
	}
}

func (d *Dispatcher) absentees(ctx context.Context, msg Message, _ []string) error {
	absentees, err := d.attendance.Absentees(ctx)
	if err != nil {
		return err
	}
	return d.say(ctx, msg, attendanceText(absentees))
}

func (d *Dispatcher) usage(ctx context.Context, msg Message, _ []string) error {
	return d.say(ctx, msg, usageFor(msg.Direct))
}

func containsDigit(text string) bool {
	return strings.ContainsAny(text, "0123456789")
}
