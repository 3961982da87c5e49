package domain

// EventType discriminates dispatch events.
type EventType string

const (
	EventRow  EventType = "row"
	EventDone EventType = "done"

	// EventAborted is never streamed; it closes a launch on the audit queue
	// when the stream ended early.
	EventAborted EventType = "aborted"
)

// Outcome is the result of processing one staged row.
type Outcome string

const (
	OutcomeSent    Outcome = "sent"
	OutcomeSkipped Outcome = "skipped"
	OutcomeError   Outcome = "error"
)

// Counters are the running totals of a dispatch.
type Counters struct {
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Processed is the number of rows with a determined outcome.
func (c Counters) Processed() int {
	return c.Sent + c.Failed + c.Skipped
}

// DispatchEvent is one progress frame: a row outcome or the final summary.
type DispatchEvent struct {
	Type EventType `json:"type"`
	Counters
	Index  *int    `json:"index,omitempty"`
	Total  int     `json:"total"`
	Phone  string  `json:"phone,omitempty"`
	Status Outcome `json:"status,omitempty"`
	Detail string  `json:"detail,omitempty"`
}

// RowEvent builds the event for row idx of total.
func RowEvent(c Counters, idx, total int, phone string, status Outcome, detail string) DispatchEvent {
	return DispatchEvent{
		Type:     EventRow,
		Counters: c,
		Index:    &idx,
		Total:    total,
		Phone:    phone,
		Status:   status,
		Detail:   detail,
	}
}

// DoneEvent builds the terminal summary event.
func DoneEvent(c Counters, total int) DispatchEvent {
	return DispatchEvent{Type: EventDone, Counters: c, Total: total}
}

// AbortedEvent summarises a launch that stopped before its last row.
func AbortedEvent(c Counters, total int, reason string) DispatchEvent {
	return DispatchEvent{Type: EventAborted, Counters: c, Total: total, Detail: reason}
}
