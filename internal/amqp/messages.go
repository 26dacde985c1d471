package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event names double as routing keys.
const (
	EventStudentSaved   = "student.saved"
	EventStudentDeleted = "student.deleted"
)

// StudentEvent announces that a student was written. It carries identifiers
// and a summary only; consumers reload the student when they need the data.
type StudentEvent struct {
	Event      string    `json:"event"`
	StudentID  string    `json:"student_id"`
	PeriodID   string    `json:"period_id"`
	UserID     string    `json:"user_id"`
	Operations []string  `json:"operations,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewStudentSavedEvent builds the event for an applied change set. ops are the
// kinds of the operations that were applied, in order.
func NewStudentSavedEvent(studentID, periodID, userID string, ops []string) *StudentEvent {
	return &StudentEvent{
		Event:      EventStudentSaved,
		StudentID:  studentID,
		PeriodID:   periodID,
		UserID:     userID,
		Operations: ops,
		Timestamp:  time.Now().UTC(),
	}
}

func NewStudentDeletedEvent(studentID, periodID, userID string) *StudentEvent {
	return &StudentEvent{
		Event:     EventStudentDeleted,
		StudentID: studentID,
		PeriodID:  periodID,
		UserID:    userID,
		Timestamp: time.Now().UTC(),
	}
}

func (e *StudentEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// StudentEventFromJSON decodes an event and rejects unknown event names.
func StudentEventFromJSON(data []byte) (*StudentEvent, error) {
	var ev StudentEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	switch ev.Event {
	case EventStudentSaved, EventStudentDeleted:
	default:
		return nil, fmt.Errorf("unknown event %q", ev.Event)
	}
	if ev.StudentID == "" {
		return nil, fmt.Errorf("event %s without student id", ev.Event)
	}
	return &ev, nil
}
