package conflict

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/tutorhub/tutorhub/pkg/recurring"
	"github.com/tutorhub/tutorhub/pkg/slot"
)

var (
	// ErrVirtualOccurrence is returned when a mutation targets a display-only occurrence.
	ErrVirtualOccurrence = errors.New("virtual recurring occurrence cannot be modified")
	ErrInvalidRef        = errors.New("invalid booking reference")
)

var occurrenceNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("tutorhub.recurring-occurrence"))

// Ref identifies an event on the calendar. It is either a PersistedBooking or a VirtualOccurrence.
type Ref interface {
	// String is the identifier surfaced to clients.
	String() string
	isRef()
}

type PersistedBooking struct {
	Id int
}

func (p PersistedBooking) String() string {
	return strconv.Itoa(p.Id)
}

func (PersistedBooking) isRef() {}

type VirtualOccurrence struct {
	RecurringId int
	Date        time.Time
}

// String is a UUIDv5 derived from the recurring booking and the date, stable across requests.
func (v VirtualOccurrence) String() string {
	name := fmt.Sprintf("%d:%s", v.RecurringId, slot.Date(v.Date).Format(time.DateOnly))
	return uuid.NewSHA1(occurrenceNamespace, []byte(name)).String()
}

func (VirtualOccurrence) isRef() {}

// ParseRef reads a client supplied identifier. Numeric ids are persisted bookings; synthetic
// occurrence ids are recognised and rejected with ErrVirtualOccurrence.
func ParseRef(s string) (Ref, error) {
	if id, err := strconv.Atoi(s); err == nil && id > 0 {
		return PersistedBooking{Id: id}, nil
	}
	if _, err := uuid.Parse(s); err == nil {
		return nil, ErrVirtualOccurrence
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidRef, s)
}

// BookingId returns the row id behind ref, refusing virtual occurrences.
func BookingId(ref Ref) (int, error) {
	switch r := ref.(type) {
	case PersistedBooking:
		return r.Id, nil
	case VirtualOccurrence:
		return 0, ErrVirtualOccurrence
	default:
		return 0, ErrInvalidRef
	}
}

type Occurrence struct {
	Ref       VirtualOccurrence
	Recurring recurring.RecurringBooking
	Start     time.Time
	End       time.Time
}

// Expand materializes each recurring booking once per UTC date in [from, to) matching its
// weekday. Occurrences are sorted by start.
func Expand(reservations []recurring.RecurringBooking, from time.Time, to time.Time) []Occurrence {
	var occurrences []Occurrence
	for day := slot.Date(from); day.Before(to); day = day.AddDate(0, 0, 1) {
		for _, rb := range reservations {
			if !rb.OccursOn(day) {
				continue
			}
			start := slot.ToTime(rb.StartSlot, day)
			end := slot.ToTime(rb.StartSlot+rb.Duration, day)
			if !start.Before(to) || !end.After(from) {
				continue
			}
			occurrences = append(occurrences, Occurrence{
				Ref:       VirtualOccurrence{RecurringId: rb.Id, Date: day},
				Recurring: rb,
				Start:     start,
				End:       end,
			})
		}
	}
	sort.SliceStable(occurrences, func(i, j int) bool { return occurrences[i].Start.Before(occurrences[j].Start) })
	return occurrences
}
