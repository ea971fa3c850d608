package reset

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"timebot/internal/domain"
	"timebot/internal/timesheet"
)

type fakeMembers struct {
	members    map[string]domain.Member
	active     []domain.Member
	resetCalls int
	resetErr   error
}

func (f *fakeMembers) GetByID(_ context.Context, memberID string) (domain.Member, error) {
	member, ok := f.members[memberID]
	if !ok {
		return domain.Member{}, domain.ErrMemberNotFound
	}
	return member, nil
}

func (f *fakeMembers) ListActive(context.Context) ([]domain.Member, error) {
	return f.active, nil
}

func (f *fakeMembers) ResetWeek(context.Context) (int64, error) {
	f.resetCalls++
	if f.resetErr != nil {
		return 0, f.resetErr
	}
	return int64(len(f.active)), nil
}

type fakeResets struct {
	records []domain.ResetRecord
}

func (f *fakeResets) Create(_ context.Context, record domain.ResetRecord) (domain.ResetRecord, error) {
	f.records = append(f.records, record)
	return record, nil
}

func TestResetWritesTimesheetAndRecordsAudit(t *testing.T) {
	hookLogger, hook := logtest.NewNullLogger()
	members := &fakeMembers{active: []domain.Member{
		{MemberID: "U1", DisplayName: "ada", LateWeek: time.Minute, WorkedWeek: time.Hour},
		{MemberID: "U2", DisplayName: "bob"},
	}}
	resets := &fakeResets{}
	dir := t.TempDir()

	resetter := NewResetter(members, resets, dir, time.UTC, false, logrus.NewEntry(hookLogger))
	resetter.now = func() time.Time { return time.Date(2024, 3, 8, 17, 0, 0, 0, time.UTC) }

	record, err := resetter.Reset(context.Background(), "U1", "command")
	if err != nil {
		t.Fatalf("Reset returned error: %v", err)
	}

	wantPath := filepath.Join(dir, "2024-03-08-timesheet.csv")
	if record.Timesheet != wantPath {
		t.Fatalf("expected timesheet %s, got %s", wantPath, record.Timesheet)
	}
	content, err := os.ReadFile(wantPath)
	if err != nil {
		t.Fatalf("read timesheet: %v", err)
	}
	if string(content) != "name,late_week_seconds,worked_week_seconds\nada,60,3600\nbob,0,0\n" {
		t.Fatalf("unexpected timesheet content %q", content)
	}

	if members.resetCalls != 1 {
		t.Fatalf("expected one ResetWeek call, got %d", members.resetCalls)
	}
	if len(resets.records) != 1 {
		t.Fatalf("expected one reset record, got %d", len(resets.records))
	}
	stored := resets.records[0]
	if _, err := uuid.Parse(stored.ResetID); err != nil {
		t.Fatalf("expected uuid reset id, got %q", stored.ResetID)
	}
	if stored.Actor != "U1" || stored.MemberCount != 2 {
		t.Fatalf("unexpected reset record %+v", stored)
	}

	entry := hook.LastEntry()
	if entry == nil || entry.Data["event"] != "weekly_reset" || entry.Data["trigger"] != "command" {
		t.Fatalf("expected weekly_reset log entry, got %+v", entry)
	}
}

func TestResetStopsWhenTimesheetFails(t *testing.T) {
	members := &fakeMembers{}
	resets := &fakeResets{}

	orig := writeTimesheet
	writeTimesheet = func(string, string, []timesheet.Row) (string, error) {
		return "", errors.New("disk full")
	}
	t.Cleanup(func() { writeTimesheet = orig })

	resetter := NewResetter(members, resets, t.TempDir(), time.UTC, false, nil)
	if _, err := resetter.Reset(context.Background(), ActorScheduler, "scheduler"); err == nil {
		t.Fatalf("expected timesheet failure to error")
	}
	if members.resetCalls != 0 || len(resets.records) != 0 {
		t.Fatalf("expected nothing to be reset after export failure")
	}
}

func TestResetPropagatesStoreError(t *testing.T) {
	members := &fakeMembers{resetErr: errors.New("boom")}
	resets := &fakeResets{}

	resetter := NewResetter(members, resets, t.TempDir(), time.UTC, false, nil)
	if _, err := resetter.Reset(context.Background(), "U1", "command"); err == nil {
		t.Fatalf("expected store failure to error")
	}
	if len(resets.records) != 0 {
		t.Fatalf("expected no audit record after failed reset")
	}
}

func TestResetRequiresActor(t *testing.T) {
	resetter := NewResetter(&fakeMembers{}, &fakeResets{}, t.TempDir(), time.UTC, false, nil)
	if _, err := resetter.Reset(context.Background(), "", "command"); err == nil {
		t.Fatalf("expected missing actor to error")
	}
}

func TestAuthorize(t *testing.T) {
	members := &fakeMembers{members: map[string]domain.Member{
		"A1": {MemberID: "A1", Role: domain.RoleAdmin},
		"U1": {MemberID: "U1", Role: domain.RoleMember},
	}}

	open := NewResetter(members, &fakeResets{}, "", time.UTC, false, nil)
	if err := open.Authorize(context.Background(), "U1"); err != nil {
		t.Fatalf("expected unrestricted reset to be allowed, got %v", err)
	}

	restricted := NewResetter(members, &fakeResets{}, "", time.UTC, true, nil)
	if err := restricted.Authorize(context.Background(), "A1"); err != nil {
		t.Fatalf("expected admin to be allowed, got %v", err)
	}
	if err := restricted.Authorize(context.Background(), "U1"); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("expected ErrNotAdmin for member, got %v", err)
	}
	if err := restricted.Authorize(context.Background(), "ghost"); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("expected ErrNotAdmin for unknown member, got %v", err)
	}
}
