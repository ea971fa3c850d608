package command

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"timebot/internal/attendance"
	"timebot/internal/domain"
	"timebot/internal/feature/reset"
)

type reaction struct {
	channel   string
	timestamp string
	name      Reaction
}

type fakeReplier struct {
	posts     []string
	reactions []reaction
	postErr   error
}

func (f *fakeReplier) Post(_ context.Context, _ string, text string) error {
	f.posts = append(f.posts, text)
	return f.postErr
}

func (f *fakeReplier) React(_ context.Context, msg Message, r Reaction) error {
	f.reactions = append(f.reactions, reaction{channel: msg.Channel, timestamp: msg.Timestamp, name: r})
	return nil
}

type fakeAttendance struct {
	clockIn     attendance.ClockInResult
	clockInErr  error
	lateMinutes int
	lateErr     error
	outErr      error
	hours       float64
	hoursErr    error
	activeErr   error
	activeCalls []bool
	member      domain.Member
	statusErr   error
	registered  []string
	registerErr error
	standings   []domain.Member
	totals      attendance.Totals
	absentees   []attendance.Absentee
	panicOn     string
}

func (f *fakeAttendance) ClockIn(context.Context, string) (attendance.ClockInResult, error) {
	if f.panicOn == "in" {
		panic("kaboom")
	}
	return f.clockIn, f.clockInErr
}

func (f *fakeAttendance) ClockInLate(_ context.Context, _ string, minutes int) (attendance.ClockInResult, error) {
	f.lateMinutes = minutes
	return f.clockIn, f.lateErr
}

func (f *fakeAttendance) ClockOut(context.Context, string) (time.Duration, error) {
	return time.Hour, f.outErr
}

func (f *fakeAttendance) ClockOutHours(_ context.Context, _ string, hours float64) (time.Duration, error) {
	f.hours = hours
	return time.Duration(hours * float64(time.Hour)), f.hoursErr
}

func (f *fakeAttendance) SetActive(_ context.Context, _ string, active bool) error {
	f.activeCalls = append(f.activeCalls, active)
	return f.activeErr
}

func (f *fakeAttendance) Status(context.Context, string) (domain.Member, error) {
	return f.member, f.statusErr
}

func (f *fakeAttendance) Register(_ context.Context, memberID, name string) (domain.Member, error) {
	f.registered = append(f.registered, memberID+"="+name)
	return domain.Member{MemberID: memberID, DisplayName: name}, f.registerErr
}

func (f *fakeAttendance) Standings(context.Context) ([]domain.Member, error) {
	return f.standings, nil
}

func (f *fakeAttendance) Totals(context.Context) (attendance.Totals, error) {
	return f.totals, nil
}

func (f *fakeAttendance) Absentees(context.Context) ([]attendance.Absentee, error) {
	return f.absentees, nil
}

type fakeResetter struct {
	authErr error
	actors  []string
}

func (f *fakeResetter) Authorize(context.Context, string) error {
	return f.authErr
}

func (f *fakeResetter) Reset(_ context.Context, actor, trigger string) (domain.ResetRecord, error) {
	f.actors = append(f.actors, actor+"/"+trigger)
	return domain.ResetRecord{ResetID: "r1", Actor: actor}, nil
}

type staticDirectory map[string]string

func (s staticDirectory) DisplayName(_ context.Context, memberID string) (string, error) {
	return s[memberID], nil
}

func newTestDispatcher(att *fakeAttendance) (*Dispatcher, *fakeReplier, *fakeResetter, *logtest.Hook) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	replier := &fakeReplier{}
	resetter := &fakeResetter{}
	d := NewDispatcher(att, resetter, replier, staticDirectory{"U1": "ada"}, logrus.NewEntry(logger))
	return d, replier, resetter, hook
}

func dm(text string) Message {
	return Message{Text: text, Channel: "D1", User: "U1", UserName: "ada_handle", Timestamp: "1.0", Direct: true}
}

func public(text string) Message {
	return Message{Text: text, Channel: "C1", User: "U1", Timestamp: "2.0"}
}

func TestHandleIgnoresNonCommands(t *testing.T) {
	d, replier, _, _ := newTestDispatcher(&fakeAttendance{})

	d.Handle(context.Background(), dm("good morning"))

	if len(replier.posts) != 0 || len(replier.reactions) != 0 {
		t.Fatalf("expected no replies, got %v / %v", replier.posts, replier.reactions)
	}
}

func TestHandleClockInReactsAndNormalizes(t *testing.T) {
	d, replier, _, _ := newTestDispatcher(&fakeAttendance{})

	d.Handle(context.Background(), dm("  !IN  "))

	want := []reaction{{channel: "D1", timestamp: "1.0", name: ReactionAck}}
	if diff := cmp.Diff(want, replier.reactions, cmp.AllowUnexported(reaction{})); diff != "" {
		t.Fatalf("unexpected reactions (-want +got):\n%s", diff)
	}
	if len(replier.posts) != 0 {
		t.Fatalf("expected no posts, got %v", replier.posts)
	}
}

func TestHandleInactiveIsNotShadowedByIn(t *testing.T) {
	att := &fakeAttendance{}
	d, replier, _, _ := newTestDispatcher(att)

	d.Handle(context.Background(), dm("!inactive"))

	if diff := cmp.Diff([]bool{false}, att.activeCalls); diff != "" {
		t.Fatalf("expected inactive call (-want +got):\n%s", diff)
	}
	if len(replier.reactions) != 1 || replier.reactions[0].name != ReactionDone {
		t.Fatalf("expected white_check_mark reaction, got %v", replier.reactions)
	}
}

func TestHandleClockInReplies(t *testing.T) {
	tests := []struct {
		name string
		text string
		att  *fakeAttendance
		want string
	}{
		{name: "digit", text: "!in 5", att: &fakeAttendance{}, want: replyDidYouMeanIn},
		{name: "not eligible", text: "!in", att: &fakeAttendance{clockInErr: attendance.ErrNotEligible}, want: replyNotActive},
		{name: "already in", text: "!in", att: &fakeAttendance{clockInErr: attendance.ErrAlreadyClockedIn}, want: replyAlreadyIn},
		{name: "intime missing", text: "!intime", att: &fakeAttendance{}, want: replyInTimeUsage},
		{name: "intime bad", text: "!intime soon", att: &fakeAttendance{}, want: replyInTimeUsage},
		{name: "intime not eligible", text: "!intime 5", att: &fakeAttendance{lateErr: attendance.ErrNotEligible}, want: replyNotActiveShort},
		{name: "intime already in", text: "!intime 5", att: &fakeAttendance{lateErr: attendance.ErrAlreadyClockedIn}, want: replyAlreadyInToday},
		{name: "intime past midnight", text: "!intime 200000000", att: &fakeAttendance{lateErr: attendance.ErrInvalidMinutes}, want: replyInTimeUsage},
		{name: "out digit", text: "!out 3", att: &fakeAttendance{}, want: replyDidYouMeanOut},
		{name: "out not eligible", text: "!out", att: &fakeAttendance{outErr: attendance.ErrNotEligible}, want: replyNotActive},
		{name: "already out", text: "!out", att: &fakeAttendance{outErr: attendance.ErrAlreadyClockedOut}, want: replyAlreadyOut},
		{name: "outtime bad", text: "!outtime lots", att: &fakeAttendance{}, want: replyOutTimeUsage},
		{name: "outtime negative", text: "!outtime -2", att: &fakeAttendance{hoursErr: attendance.ErrInvalidHours}, want: replyOutTimeUsage},
		{name: "outtime oversized", text: "!outtime 1e300", att: &fakeAttendance{hoursErr: attendance.ErrInvalidHours}, want: replyOutTimeUsage},
		{name: "active unknown", text: "!active", att: &fakeAttendance{activeErr: attendance.ErrNotRegistered}, want: replyNotRegistered},
		{name: "status unknown", text: "!status", att: &fakeAttendance{statusErr: attendance.ErrNotRegistered}, want: replyNotRegistered},
		{name: "addme existing", text: "!addme", att: &fakeAttendance{registerErr: attendance.ErrAlreadyRegistered}, want: replyAlreadyMember},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, replier, _, hook := newTestDispatcher(tt.att)

			d.Handle(context.Background(), dm(tt.text))

			if diff := cmp.Diff([]string{tt.want}, replier.posts); diff != "" {
				t.Fatalf("unexpected replies (-want +got):\n%s", diff)
			}
			if len(replier.reactions) != 0 {
				t.Fatalf("expected no reactions, got %v", replier.reactions)
			}
			entry := hook.LastEntry()
			if entry == nil || entry.Data["event"] != "command_rejected" {
				t.Fatalf("expected command_rejected log, got %+v", entry)
			}
		})
	}
}

func TestHandleIntimePassesMinutes(t *testing.T) {
	att := &fakeAttendance{clockIn: attendance.ClockInResult{Late: 5 * time.Minute}}
	d, replier, _, _ := newTestDispatcher(att)

	d.Handle(context.Background(), dm("!intime 5"))

	if att.lateMinutes != 5 {
		t.Fatalf("expected 5 minutes, got %d", att.lateMinutes)
	}
	if len(replier.reactions) != 1 || replier.reactions[0].name != ReactionAck {
		t.Fatalf("expected thumbsup, got %v", replier.reactions)
	}
}

func TestHandleOuttimeParsesDecimalHours(t *testing.T) {
	att := &fakeAttendance{}
	d, replier, _, _ := newTestDispatcher(att)

	d.Handle(context.Background(), dm("!outtime 1.5"))

	if att.hours != 1.5 {
		t.Fatalf("expected 1.5 hours, got %v", att.hours)
	}
	if len(replier.reactions) != 1 {
		t.Fatalf("expected a reaction, got %v", replier.reactions)
	}
}

func TestHandleWeekendClockInWarns(t *testing.T) {
	d, replier, _, _ := newTestDispatcher(&fakeAttendance{clockIn: attendance.ClockInResult{Weekend: true}})

	d.Handle(context.Background(), dm("!in"))

	if diff := cmp.Diff([]string{replyWeekend}, replier.posts); diff != "" {
		t.Fatalf("unexpected replies (-want +got):\n%s", diff)
	}
	if len(replier.reactions) != 1 {
		t.Fatalf("expected thumbsup after weekend warning, got %v", replier.reactions)
	}
}

func TestHandleAddMeRegistersAndActivates(t *testing.T) {
	att := &fakeAttendance{}
	d, replier, _, _ := newTestDispatcher(att)

	d.Handle(context.Background(), dm("!addme"))

	if diff := cmp.Diff([]string{"U1=ada"}, att.registered); diff != "" {
		t.Fatalf("unexpected registration (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]bool{true}, att.activeCalls); diff != "" {
		t.Fatalf("expected member to be activated (-want +got):\n%s", diff)
	}
	if len(replier.reactions) != 2 || replier.reactions[0].name != ReactionAck || replier.reactions[1].name != ReactionDone {
		t.Fatalf("expected thumbsup then white_check_mark, got %v", replier.reactions)
	}
}

func TestHandleAddMeFallsBackToMessageName(t *testing.T) {
	att := &fakeAttendance{}
	logger, _ := logtest.NewNullLogger()
	d := NewDispatcher(att, &fakeResetter{}, &fakeReplier{}, nil, logrus.NewEntry(logger))

	msg := dm("!addme")
	msg.User = "42"
	d.Handle(context.Background(), msg)

	if diff := cmp.Diff([]string{"42=ada_handle"}, att.registered); diff != "" {
		t.Fatalf("unexpected registration (-want +got):\n%s", diff)
	}
}

func TestHandleStatus(t *testing.T) {
	tests := []struct {
		name   string
		member domain.Member
		want   string
	}{
		{
			name:   "fresh",
			member: domain.Member{},
			want:   "You have not been late yet this week. You have not done any work yet this week. ",
		},
		{
			name:   "late and worked",
			member: domain.Member{LateWeek: 90 * time.Second, WorkedWeek: 2*time.Hour + time.Second},
			want:   "You have been 1 minutes, 30 seconds late this week.  You have worked for 2 hours, 0 minutes, 1 seconds this week. ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, replier, _, _ := newTestDispatcher(&fakeAttendance{member: tt.member})

			d.Handle(context.Background(), dm("!status"))

			if diff := cmp.Diff([]string{tt.want}, replier.posts); diff != "" {
				t.Fatalf("unexpected status (-want +got):\n%s", diff)
			}
		})
	}
}

func TestHandleReset(t *testing.T) {
	d, replier, resetter, _ := newTestDispatcher(&fakeAttendance{})

	d.Handle(context.Background(), dm("!!reset"))

	if diff := cmp.Diff([]string{"U1/command"}, resetter.actors); diff != "" {
		t.Fatalf("unexpected reset calls (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{replyResetDone}, replier.posts); diff != "" {
		t.Fatalf("unexpected replies (-want +got):\n%s", diff)
	}

	resetter.authErr = reset.ErrNotAdmin
	replier.posts = nil
	d.Handle(context.Background(), dm("!!reset"))

	if diff := cmp.Diff([]string{replyResetForbidden}, replier.posts); diff != "" {
		t.Fatalf("unexpected replies (-want +got):\n%s", diff)
	}
	if len(resetter.actors) != 1 {
		t.Fatalf("expected unauthorized reset to be skipped, got %v", resetter.actors)
	}
}

func TestHandleDirectOnlyCommandInChannel(t *testing.T) {
	att := &fakeAttendance{}
	d, replier, _, _ := newTestDispatcher(att)

	d.Handle(context.Background(), public("!In"))

	want := "I don't understand !in. " + PublicUsage()
	if diff := cmp.Diff([]string{want}, replier.posts); diff != "" {
		t.Fatalf("unexpected replies (-want +got):\n%s", diff)
	}
}

func TestHandleUnknownCommandInDirectMessage(t *testing.T) {
	d, replier, _, _ := newTestDispatcher(&fakeAttendance{})

	d.Handle(context.Background(), dm("!dance"))

	want := "I don't understand !dance. " + PrivateUsage()
	if diff := cmp.Diff([]string{want}, replier.posts); diff != "" {
		t.Fatalf("unexpected replies (-want +got):\n%s", diff)
	}
}

func TestHandleUsageDependsOnChannel(t *testing.T) {
	d, replier, _, _ := newTestDispatcher(&fakeAttendance{})

	d.Handle(context.Background(), dm("!usage"))
	d.Handle(context.Background(), public("!usage"))

	if diff := cmp.Diff([]string{PrivateUsage(), PublicUsage()}, replier.posts); diff != "" {
		t.Fatalf("unexpected replies (-want +got):\n%s", diff)
	}
}

func TestHandleStandings(t *testing.T) {
	att := &fakeAttendance{standings: []domain.Member{
		{DisplayName: "bob", LateWeek: 2 * time.Minute},
		{DisplayName: "ada", LateWeek: 30 * time.Second},
	}}
	d, replier, _, _ := newTestDispatcher(att)

	d.Handle(context.Background(), public("!standings"))

	want := "*Here are the current latest people this week:*\n" +
		"*bob*: 2 minutes, 0 seconds late\n" +
		"*ada*: 30 seconds late\n" +
		"Better luck next time!"
	if diff := cmp.Diff([]string{want}, replier.posts); diff != "" {
		t.Fatalf("unexpected standings (-want +got):\n%s", diff)
	}

	att.standings = nil
	replier.posts = nil
	d.Handle(context.Background(), public("!standings"))
	if diff := cmp.Diff([]string{replyStandingsNobody}, replier.posts); diff != "" {
		t.Fatalf("unexpected empty standings (-want +got):\n%s", diff)
	}
}

func TestHandleTotals(t *testing.T) {
	att := &fakeAttendance{totals: attendance.Totals{
		LateWeek:    45 * time.Second,
		LateTotal:   2 * time.Minute,
		WorkedWeek:  3 * time.Hour,
		WorkedTotal: 5 * time.Second,
	}}
	d, replier, _, _ := newTestDispatcher(att)

	for _, text := range []string{"!lateweek", "!latesemester", "!workweek", "!worksemester"} {
		d.Handle(context.Background(), public(text))
	}

	want := []string{
		"The total time that we've been late this week is 45 seconds.",
		"The total time that we've been late this semester is 2 minutes, 0 seconds.",
		"The total time that we've been hard at work this week is 3 hours, 0 minutes, 0 seconds.",
		"The total time that we've been hard at work this semester is 5 seconds.",
	}
	if diff := cmp.Diff(want, replier.posts); diff != "" {
		t.Fatalf("unexpected totals (-want +got):\n%s", diff)
	}
}

func TestHandleAttendance(t *testing.T) {
	att := &fakeAttendance{absentees: []attendance.Absentee{
		{Name: "ada", DaysAgo: 1},
		{Name: "bob", DaysAgo: 4},
		{Name: "cy", Never: true},
	}}
	d, replier, _, _ := newTestDispatcher(att)

	d.Handle(context.Background(), public("!attendance"))

	want := "These people haven't clocked in yet today:\n" +
		"*ada*: 1 day ago\n" +
		"*bob*: 4 days ago\n" +
		"*cy*: never\n"
	if diff := cmp.Diff([]string{want}, replier.posts); diff != "" {
		t.Fatalf("unexpected attendance (-want +got):\n%s", diff)
	}
}

func TestHandleRecoversFromPanics(t *testing.T) {
	d, replier, _, hook := newTestDispatcher(&fakeAttendance{panicOn: "in"})

	d.Handle(context.Background(), dm("!in"))

	if diff := cmp.Diff([]string{replyCrash}, replier.posts); diff != "" {
		t.Fatalf("unexpected replies (-want +got):\n%s", diff)
	}
	entry := hook.LastEntry()
	if entry == nil || entry.Data["event"] != "command_failed" || !strings.Contains(entry.Data["error"].(string), "kaboom") {
		t.Fatalf("expected command_failed log, got %+v", entry)
	}
}

func TestHandleReportsStoreFailures(t *testing.T) {
	d, replier, _, _ := newTestDispatcher(&fakeAttendance{clockInErr: errors.New("mongo down")})

	d.Handle(context.Background(), dm("!in"))

	if diff := cmp.Diff([]string{replyCrash}, replier.posts); diff != "" {
		t.Fatalf("unexpected replies (-want +got):\n%s", diff)
	}
}

func TestHandleLogsReplyFailures(t *testing.T) {
	d, replier, _, hook := newTestDispatcher(&fakeAttendance{})
	replier.postErr = errors.New("rate limited")

	d.Handle(context.Background(), public("!dance"))

	entry := hook.LastEntry()
	if entry == nil || entry.Data["event"] != "reply_failed" {
		t.Fatalf("expected reply_failed log, got %+v", entry)
	}
}

type blockingAttendance struct {
	fakeAttendance
	entered chan struct{}
	release chan struct{}
}

func (b *blockingAttendance) ClockIn(context.Context, string) (attendance.ClockInResult, error) {
	close(b.entered)
	<-b.release
	return attendance.ClockInResult{}, nil
}

func TestSerializedResetWaitsForInFlightCommand(t *testing.T) {
	att := &blockingAttendance{entered: make(chan struct{}), release: make(chan struct{})}
	logger, _ := logtest.NewNullLogger()
	resetter := &fakeResetter{}
	d := NewDispatcher(att, resetter, &fakeReplier{}, nil, logrus.NewEntry(logger))

	handled := make(chan struct{})
	go func() {
		d.Handle(context.Background(), dm("!in"))
		close(handled)
	}()
	<-att.entered

	resetDone := make(chan struct{})
	go func() {
		if _, err := d.Serialized().Reset(context.Background(), "scheduler", "schedule"); err != nil {
			t.Errorf("Reset returned error: %v", err)
		}
		close(resetDone)
	}()

	select {
	case <-resetDone:
		t.Fatalf("reset ran while a clock-in was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(att.release)
	<-handled
	select {
	case <-resetDone:
	case <-time.After(time.Second):
		t.Fatalf("reset did not run after the clock-in finished")
	}

	if diff := cmp.Diff([]string{"scheduler/schedule"}, resetter.actors); diff != "" {
		t.Fatalf("unexpected resets (-want +got):\n%s", diff)
	}
}
