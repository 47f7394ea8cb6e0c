package domain

// Canonical priority names, low to urgent. Legacy p4..p1 aliases map onto
// the same ordering and remain accepted at every boundary.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

var priorityAliases = map[string]string{
	"low":    PriorityLow,
	"medium": PriorityMedium,
	"high":   PriorityHigh,
	"urgent": PriorityUrgent,
	"p4":     PriorityLow,
	"p3":     PriorityMedium,
	"p2":     PriorityHigh,
	"p1":     PriorityUrgent,
}

var priorityRanks = map[string]int{
	PriorityLow:    1,
	PriorityMedium: 2,
	PriorityHigh:   3,
	PriorityUrgent: 4,
}

// NormalizePriority maps any accepted token (canonical or p1..p4 alias)
// to its canonical name. Unknown tokens normalize to empty.
func NormalizePriority(s string) string {
	return priorityAliases[s]
}

// ValidPriority reports whether s is a canonical name or legacy alias.
func ValidPriority(s string) bool {
	_, ok := priorityAliases[s]
	return ok
}

// PriorityRank orders priorities low=1..urgent=4; unknown ranks 0.
func PriorityRank(s string) int {
	return priorityRanks[NormalizePriority(s)]
}
