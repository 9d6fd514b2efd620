package model

// EventKind discriminates entries in the event log.
type EventKind string

const (
	EventJoin             EventKind = "join"
	EventCheckIn          EventKind = "check_in"
	EventDetail           EventKind = "detail"
	EventMeaningfulDay    EventKind = "meaningful_day"
	EventInsightDelivered EventKind = "insight_delivered"
	EventInsightGated     EventKind = "insight_gated"
	EventAhaMoment        EventKind = "aha_moment"
	EventChurn            EventKind = "churn"
	EventConversion       EventKind = "conversion"
)

// EventKinds lists every kind, in the order they can occur within a tick.
var EventKinds = []EventKind{
	EventJoin, EventCheckIn, EventDetail, EventMeaningfulDay,
	EventInsightDelivered, EventInsightGated, EventAhaMoment,
	EventChurn, EventConversion,
}

// Valid reports whether k is a known event kind.
func (k EventKind) Valid() bool {
	for _, known := range EventKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Event is one entry in the append-only event log. At most one payload is set,
// matching Kind.
type Event struct {
	Seq     int              `json:"seq"`
	Day     int              `json:"day"`
	Kind    EventKind        `json:"kind"`
	AgentID string           `json:"agent_id"`
	CheckIn *CheckInEvent    `json:"check_in,omitempty"`
	Detail  *DetailEntry     `json:"detail,omitempty"`
	Insight *InsightRecord   `json:"insight,omitempty"`
	Reason  ConversionReason `json:"reason,omitempty"`
}
