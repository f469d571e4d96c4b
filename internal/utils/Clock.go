package utils

import "time"

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (s SystemClock) Now() time.Time {
	return time.Now()
}

// BusinessClock reports the current time in the business's configured timezone.
// It is the single source of "now" for time-gated rules.
type BusinessClock struct {
	Location *time.Location
}

func NewBusinessClock(timezone string) (*BusinessClock, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, err
	}
	return &BusinessClock{Location: loc}, nil
}

func (b *BusinessClock) Now() time.Time {
	if b.Location == nil {
		return time.Now().UTC()
	}
	return time.Now().In(b.Location)
}

type MockClock struct {
	FixedNow time.Time
}

func (m *MockClock) Now() time.Time {
	return m.FixedNow
}

func (m *MockClock) SetNow(now time.Time) {
	m.FixedNow = now
}
