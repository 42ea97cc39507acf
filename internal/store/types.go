package store

import (
	"time"

	"github.com/kozaktomas/facegate/internal/biometric"
)

// Profile holds the demographic fields collected at enrollment.
// The matching engine never interprets them.
type Profile struct {
	BirthDate string `json:"birth_date" yaml:"birth_date"`
	Phone     string `json:"phone" yaml:"phone"`
	Goal      string `json:"goal" yaml:"goal"`
}

// Member is one enrolled identity.
type Member struct {
	Name       string
	Encoding   biometric.Encoding
	Profile    Profile
	EnrolledAt time.Time
}

// Clone returns a deep copy so callers cannot mutate registry-owned data.
func (m Member) Clone() Member {
	m.Encoding = m.Encoding.Clone()
	return m
}

// AttendanceEvent is one check-in, optionally closed by a check-out.
type AttendanceEvent struct {
	ID         string
	MemberName string
	CheckInAt  time.Time
	CheckOutAt *time.Time // nil while the session is open
}

// IsOpen reports whether the session has not been checked out yet.
func (e AttendanceEvent) IsOpen() bool {
	return e.CheckOutAt == nil
}

// Clone returns a copy that does not share the checkout pointer.
func (e AttendanceEvent) Clone() AttendanceEvent {
	if e.CheckOutAt != nil {
		t := *e.CheckOutAt
		e.CheckOutAt = &t
	}
	return e
}

// TimestampLayout is the timestamp format of the persisted tables.
const TimestampLayout = "2006-01-02 15:04:05"
