package domain

import "time"

// DayLayout formats check-in days in the team time zone.
const DayLayout = "2006-01-02"

// Member is the per-person attendance record kept by the bot.
type Member struct {
	MemberID       string        `bson:"member_id" json:"member_id"`
	DisplayName    string        `bson:"display_name" json:"display_name"`
	Role           string        `bson:"role" json:"role"`
	LateWeek       time.Duration `bson:"late_week" json:"late_week"`
	LateTotal      time.Duration `bson:"late_total" json:"late_total"`
	WorkedWeek     time.Duration `bson:"worked_week" json:"worked_week"`
	WorkedTotal    time.Duration `bson:"worked_total" json:"worked_total"`
	LastCheckInDay string        `bson:"last_check_in_day" json:"last_check_in_day"`
	ClockedIn      bool          `bson:"clocked_in" json:"clocked_in"`
	ClockedInAt    time.Time     `bson:"clocked_in_at" json:"clocked_in_at"`
	Active         bool          `bson:"active" json:"active"`
	CreatedAt      time.Time     `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `bson:"updated_at" json:"updated_at"`
}

// CheckedInOn reports whether the member's last check-in happened on day.
func (m Member) CheckedInOn(day string) bool {
	return m.LastCheckInDay != "" && m.LastCheckInDay == day
}

// ResetRecord is an audit entry written every time the weekly counters are
// cleared.
type ResetRecord struct {
	ResetID     string    `bson:"reset_id" json:"reset_id"`
	Actor       string    `bson:"actor" json:"actor"`
	ResetAt     time.Time `bson:"reset_at" json:"reset_at"`
	Timesheet   string    `bson:"timesheet" json:"timesheet"`
	MemberCount int       `bson:"member_count" json:"member_count"`
}
