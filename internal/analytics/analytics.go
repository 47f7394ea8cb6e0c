// Package analytics derives productivity numbers from a user's task
// history. Everything here is read-only and recomputed on demand; there
// are no persisted running totals. All comparisons are calendar-day
// granular in the caller's canonical zone.
package analytics

import (
	"time"

	"taskpulse/internal/domain"
)

const (
	pointsPerCompletion = 5
	streakBonusPerDay   = 10
	streakBonusCap      = 500
	maxStreakLookback   = 365
)

var priorityBonus = map[string]int{
	domain.PriorityUrgent: 10,
	domain.PriorityHigh:   7,
	domain.PriorityMedium: 5,
	domain.PriorityLow:    3,
}

// Level is one row of the fixed karma threshold table.
type Level struct {
	Name string
	Min  int
}

var levels = []Level{
	{"Beginner", 0},
	{"Novice", 100},
	{"Intermediate", 500},
	{"Advanced", 1000},
	{"Expert", 2500},
	{"Master", 5000},
}

// Stats is the full derived bundle exposed by the API and CLI.
type Stats struct {
	TotalTasks        int     `json:"total_tasks"`
	CompletedTasks    int     `json:"completed_tasks"`
	CompletionRate    float64 `json:"completion_rate"`
	Streak            int     `json:"streak"`
	Karma             int     `json:"karma"`
	Level             string  `json:"level"`
	NextLevelAt       int     `json:"next_level_at,omitempty"`
	WeeklyCompleted   [7]int  `json:"weekly_completed"`
	MostProductiveDay string  `json:"most_productive_day,omitempty"`
}

// Compute derives all stats for one task history at once.
func Compute(tasks []domain.Task, now time.Time) Stats {
	streak := Streak(tasks, now)
	karma := Karma(tasks, now)
	name, next := KarmaLevel(karma)
	s := Stats{
		TotalTasks:      len(tasks),
		CompletedTasks:  countCompleted(tasks),
		CompletionRate:  CompletionRate(tasks),
		Streak:          streak,
		Karma:           karma,
		Level:           name,
		NextLevelAt:     next,
		WeeklyCompleted: WeeklyChart(tasks, now),
	}
	if day, ok := MostProductiveDay(tasks, now.Location()); ok {
		s.MostProductiveDay = day.String()
	}
	return s
}

// Streak counts consecutive calendar days with at least one completion,
// walking backward from today. Today may still be empty without breaking
// the streak; the first empty prior day terminates it. Bounded at one year.
func Streak(tasks []domain.Task, now time.Time) int {
	days := completionDays(tasks, now.Location())
	if len(days) == 0 {
		return 0
	}
	streak := 0
	cursor := dayKey(now)
	for i := 0; i < maxStreakLookback; i++ {
		if days[cursor] {
			streak++
		} else if i > 0 {
			break
		}
		cursor = cursor.AddDate(0, 0, -1)
	}
	return streak
}

// Karma scores completed work: a flat award per completion, a per-task
// priority bonus, and a capped streak bonus.
func Karma(tasks []domain.Task, now time.Time) int {
	score := 0
	for _, t := range tasks {
		if t.Status != domain.StatusCompleted {
			continue
		}
		score += pointsPerCompletion
		if bonus, ok := priorityBonus[domain.NormalizePriority(t.Priority)]; ok {
			score += bonus
		} else {
			score += priorityBonus[domain.PriorityLow]
		}
	}
	streakBonus := Streak(tasks, now) * streakBonusPerDay
	if streakBonus > streakBonusCap {
		streakBonus = streakBonusCap
	}
	return score + streakBonus
}

// KarmaLevel resolves the level name for a score plus the next threshold,
// zero when the top level is reached.
func KarmaLevel(karma int) (string, int) {
	for i := len(levels) - 1; i >= 0; i-- {
		if karma >= levels[i].Min {
			if i+1 < len(levels) {
				return levels[i].Name, levels[i+1].Min
			}
			return levels[i].Name, 0
		}
	}
	return levels[0].Name, levels[1].Min
}

// CompletionRate is completed/total, zero for an empty history.
func CompletionRate(tasks []domain.Task) float64 {
	if len(tasks) == 0 {
		return 0
	}
	return float64(countCompleted(tasks)) / float64(len(tasks))
}

// WeeklyChart counts completions per day of the current week. Index 0 is
// Sunday, matching the dashboard's week start.
func WeeklyChart(tasks []domain.Task, now time.Time) [7]int {
	var counts [7]int
	weekStart := dayKey(now).AddDate(0, 0, -int(now.Weekday()))
	weekEnd := weekStart.AddDate(0, 0, 7)
	for _, t := range tasks {
		day, ok := completionDay(t, now.Location())
		if !ok {
			continue
		}
		if day.Before(weekStart) || !day.Before(weekEnd) {
			continue
		}
		counts[int(day.Weekday())]++
	}
	return counts
}

// MostProductiveDay is the weekday with the most completions across all
// history. Ties resolve to the earliest weekday in enumeration order,
// Sunday first.
func MostProductiveDay(tasks []domain.Task, loc *time.Location) (time.Weekday, bool) {
	var counts [7]int
	total := 0
	for _, t := range tasks {
		if day, ok := completionDay(t, loc); ok {
			counts[int(day.Weekday())]++
			total++
		}
	}
	if total == 0 {
		return time.Sunday, false
	}
	best := 0
	for i := 1; i < 7; i++ {
		if counts[i] > counts[best] {
			best = i
		}
	}
	return time.Weekday(best), true
}

func countCompleted(tasks []domain.Task) int {
	n := 0
	for _, t := range tasks {
		if t.Status == domain.StatusCompleted {
			n++
		}
	}
	return n
}

// completionDay strips a task's completion timestamp to its calendar day.
func completionDay(t domain.Task, loc *time.Location) (time.Time, bool) {
	if t.Status != domain.StatusCompleted || t.CompletedDate == nil {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339, *t.CompletedDate)
	if err != nil {
		return time.Time{}, false
	}
	return dayKey(ts.In(loc)), true
}

func completionDays(tasks []domain.Task, loc *time.Location) map[time.Time]bool {
	days := map[time.Time]bool{}
	for _, t := range tasks {
		if day, ok := completionDay(t, loc); ok {
			days[day] = true
		}
	}
	return days
}

func dayKey(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
