package model

// TaskOrigin records who created a template or instance.
type TaskOrigin string

const (
	OriginUser     TaskOrigin = "user"
	OriginSystem   TaskOrigin = "system"
	OriginCalendar TaskOrigin = "calendar"
	OriginDetected TaskOrigin = "detected"
)

func (o TaskOrigin) Valid() bool {
	switch o {
	case OriginUser, OriginSystem, OriginCalendar, OriginDetected:
		return true
	}
	return false
}

// TaskStatus is the execution state of an instance. COMPLETED and CANCELLED are terminal.
type TaskStatus string

const (
	StatusScheduled TaskStatus = "scheduled"
	StatusCompleted TaskStatus = "completed"
	StatusCancelled TaskStatus = "cancelled"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	return s == StatusScheduled && (next == StatusCompleted || next == StatusCancelled)
}

// MatchingStatus tracks an instance's association with a template.
type MatchingStatus string

const (
	MatchingPending   MatchingStatus = "pending"
	MatchingMatched   MatchingStatus = "matched"
	MatchingOrphan    MatchingStatus = "orphan"
	MatchingClustered MatchingStatus = "clustered"
)

func (s MatchingStatus) Valid() bool {
	switch s {
	case MatchingPending, MatchingMatched, MatchingOrphan, MatchingClustered:
		return true
	}
	return false
}

// CanAdvanceTo reports whether next is reachable from s. Matching never moves backward;
// MATCHED to MATCHED is a re-link.
func (s MatchingStatus) CanAdvanceTo(next MatchingStatus) bool {
	switch s {
	case MatchingPending:
		return next == MatchingMatched || next == MatchingOrphan
	case MatchingOrphan:
		return next == MatchingClustered
	case MatchingClustered:
		return next == MatchingMatched
	case MatchingMatched:
		return next == MatchingMatched
	}
	return false
}

type RecurrencePattern string

const (
	RecurrenceNone     RecurrencePattern = "none"
	RecurrenceDaily    RecurrencePattern = "daily"
	RecurrenceWeekly   RecurrencePattern = "weekly"
	RecurrenceBiweekly RecurrencePattern = "biweekly"
	RecurrenceMonthly  RecurrencePattern = "monthly"
	RecurrenceCustom   RecurrencePattern = "custom"
	RecurrenceSmart    RecurrencePattern = "smart"
)

func (p RecurrencePattern) Valid() bool {
	switch p {
	case RecurrenceNone, RecurrenceDaily, RecurrenceWeekly, RecurrenceBiweekly,
		RecurrenceMonthly, RecurrenceCustom, RecurrenceSmart:
		return true
	}
	return false
}

type TimePreference string

const (
	PreferMorning   TimePreference = "morning"
	PreferAfternoon TimePreference = "afternoon"
	PreferEvening   TimePreference = "evening"
	PreferAnytime   TimePreference = "anytime"
)

func (p TimePreference) Valid() bool {
	switch p {
	case PreferMorning, PreferAfternoon, PreferEvening, PreferAnytime:
		return true
	}
	return false
}

type MatchMethod string

const (
	MethodFuzzy     MatchMethod = "fuzzy"
	MethodEmbedding MatchMethod = "embedding"
	MethodLLM       MatchMethod = "llm"
)

func (m MatchMethod) Valid() bool {
	switch m {
	case MethodFuzzy, MethodEmbedding, MethodLLM:
		return true
	}
	return false
}

type ClusterStatus string

const (
	ClusterActive    ClusterStatus = "active"
	ClusterPromoted  ClusterStatus = "promoted"
	ClusterDismissed ClusterStatus = "dismissed"
)

func (s ClusterStatus) Valid() bool {
	switch s {
	case ClusterActive, ClusterPromoted, ClusterDismissed:
		return true
	}
	return false
}

func (s ClusterStatus) CanTransitionTo(next ClusterStatus) bool {
	return s == ClusterActive && (next == ClusterPromoted || next == ClusterDismissed)
}
