package task

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tempcast/tempcast/internal/location"
)

// ErrInvalidMessage is returned when a queue payload cannot be turned into a Message.
var ErrInvalidMessage = errors.New("invalid task message")

// Message is the queue payload for one forecast task.
//
// The wire schema is additive-only: new optional fields may be added, but
// existing fields are never removed or repurposed. Unknown fields are
// ignored on decode.
type Message struct {
	TaskID     ID
	Location   location.Location
	TargetDate time.Time
}

type wireMessage struct {
	TaskID     string `json:"task_id"`
	Location   string `json:"location"`
	TargetDate string `json:"target_date"`
}

// NewMessage builds the message for a validated location and date.
func NewMessage(loc location.Location, date time.Time) Message {
	day := Day(date)
	return Message{
		TaskID:     Derive(loc, day),
		Location:   loc,
		TargetDate: day,
	}
}

// Encode serializes the message as JSON.
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(wireMessage{
		TaskID:     m.TaskID.String(),
		Location:   string(m.Location),
		TargetDate: FormatDate(m.TargetDate),
	})
}

// DecodeMessage parses and validates a queue payload. A payload whose
// task_id does not match its (location, target_date) is rejected.
func DecodeMessage(data []byte) (Message, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	if w.TaskID == "" || w.Location == "" || w.TargetDate == "" {
		return Message{}, fmt.Errorf("%w: missing required field", ErrInvalidMessage)
	}

	id, err := uuid.Parse(w.TaskID)
	if err != nil {
		return Message{}, fmt.Errorf("%w: task_id: %v", ErrInvalidMessage, err)
	}

	loc, err := location.Parse(w.Location)
	if err != nil {
		return Message{}, fmt.Errorf("%w: location %q: %v", ErrInvalidMessage, w.Location, err)
	}

	date, err := ParseDate(w.TargetDate)
	if err != nil {
		return Message{}, fmt.Errorf("%w: target_date: %v", ErrInvalidMessage, err)
	}

	if expected := Derive(loc, date); expected != id {
		return Message{}, fmt.Errorf("%w: task_id %s does not match %s", ErrInvalidMessage, id, Canonical(loc, date))
	}

	return Message{TaskID: id, Location: loc, TargetDate: date}, nil
}
