package command

import (
	"fmt"
	"strings"

	"timebot/internal/attendance"
	"timebot/internal/domain"
)

const (
	replyCrash            = "Whoa! You almost killed me! Talk to an administrator."
	replyWeekend          = "Why are you coming in on the weekend???"
	replyDidYouMeanIn     = "I noticed you included a number in your message. Did you mean to do *!intime*?"
	replyDidYouMeanOut    = "I noticed you included a number in your message. Did you mean to do *!outtime*?"
	replyNotActive        = "You are not in the database or you're not marked active. Talk to an administrator."
	replyNotActiveShort   = "You are not in the database or inactive. Talk to an administrator."
	replyNotRegistered    = "You are not in the database. Talk to an administrator."
	replyAlreadyIn        = "You are already clocked in!"
	replyAlreadyInToday   = "You already clocked in today!"
	replyAlreadyOut       = "You are already clocked out!"
	replyInTimeUsage      = "Invalid usage. Put the number of minutes late after *!intime*."
	replyOutTimeUsage     = "Invalid usage. Put the number of hours spent after *!outtime*."
	replyAlreadyMember    = "You are already in the database, if you're having issues, try *!active*."
	replyResetDone        = "Standings reset!"
	replyResetForbidden   = "Only an administrator can reset the standings."
	replyStandingsHeader  = "*Here are the current latest people this week:*\n"
	replyStandingsFooter  = "Better luck next time!"
	replyStandingsNobody  = "Nobody has been late this week. At least not _yet_"
	replyAttendanceHeader = "These people haven't clocked in yet today:\n"
)

// ResetAnnouncement is posted after a weekly reset.
const ResetAnnouncement = replyResetDone

// PrivateUsage lists the commands available in a direct message.
func PrivateUsage() string {
	return "Try one of these:\n" +
		"*!in*: Clock in\n" +
		"*!intime number*: Clock in being _number_ minutes late. (For when you forget to clock in). Ex: !intime 5\n" +
		"*!out*: Clock out\n" +
		"*!outtime number*: Clock out having worked _number_ hours. Ex: !outtime 2 (worked 2 hours)\n" +
		"*!active*: Mark yourself active\n" +
		"*!inactive*: Mark yourself inactive\n" +
		"*!status*: See your current late time this week\n" +
		"*!addme*: Add yourself to the database\n" +
		"*!lateweek*: See the cumulative time that people have been late this week\n" +
		"*!attendance*: See who hasn't clocked in yet today\n" +
		"*!usage*: This usage statement"
}

// PublicUsage lists the commands available in a channel.
func PublicUsage() string {
	return "I can only do this in public channels:\n" +
		"*!standings*: View current standings for the week\n" +
		"*!attendance*: See who hasn't clocked in today\n" +
		"*!workweek*: See the cumulative time that people have worked this week\n" +
		"*!worksemester*: See the cumulative time that people have worked this semester\n" +
		"*!lateweek*: See the cumulative time that people have been late this week\n" +
		"*!latesemester*: See the cumulative time that people have been late this semester\n" +
		"*!usage*: This usage statement"
}

func usageFor(direct bool) string {
	if direct {
		return PrivateUsage()
	}
	return PublicUsage()
}

func notUnderstood(text string, direct bool) string {
	return "I don't understand " + text + ". " + usageFor(direct)
}

func statusText(member domain.Member) string {
	var b strings.Builder
	if member.LateWeek > 0 {
		b.WriteString("You have been " + attendance.FormatDuration(member.LateWeek) + " late this week. ")
	} else {
		b.WriteString("You have not been late yet this week.")
	}
	b.WriteString(" ")
	if member.WorkedWeek > 0 {
		b.WriteString("You have worked for " + attendance.FormatDuration(member.WorkedWeek) + " this week. ")
	} else {
		b.WriteString("You have not done any work yet this week. ")
	}
	return b.String()
}

func standingsText(members []domain.Member) string {
	if len(members) == 0 {
		return replyStandingsNobody
	}

	var b strings.Builder
	b.WriteString(replyStandingsHeader)
	for _, m := range members {
		fmt.Fprintf(&b, "*%s*: %s late\n", m.DisplayName, attendance.FormatDuration(m.LateWeek))
	}
	b.WriteString(replyStandingsFooter)
	return b.String()
}

func attendanceText(absentees []attendance.Absentee) string {
	var b strings.Builder
	b.WriteString(replyAttendanceHeader)
	for _, a := range absentees {
		switch {
		case a.Never:
			fmt.Fprintf(&b, "*%s*: never\n", a.Name)
		case a.DaysAgo == 1:
			fmt.Fprintf(&b, "*%s*: %d day ago\n", a.Name, a.DaysAgo)
		default:
			fmt.Fprintf(&b, "*%s*: %d days ago\n", a.Name, a.DaysAgo)
		}
	}
	return b.String()
}

func lateWeekText(t attendance.Totals) string {
	return "The total time that we've been late this week is " + attendance.FormatDuration(t.LateWeek) + "."
}

func lateSemesterText(t attendance.Totals) string {
	return "The total time that we've been late this semester is " + attendance.FormatDuration(t.LateTotal) + "."
}

func workWeekText(t attendance.Totals) string {
	return "The total time that we've been hard at work this week is " + attendance.FormatDuration(t.WorkedWeek) + "."
}

func workSemesterText(t attendance.Totals) string {
	return "The total time that we've been hard at work this semester is " + attendance.FormatDuration(t.WorkedTotal) + "."
}
