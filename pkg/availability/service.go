package availability

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tutorhub/tutorhub/internal/cache"
	"github.com/tutorhub/tutorhub/internal/event_bus"
	"github.com/tutorhub/tutorhub/internal/utils"
	"github.com/tutorhub/tutorhub/pkg/slot"
)

var ErrInvalidInput = slot.ErrInvalidInput

type Service interface {
	// GetWeekly returns windows sorted by day of week and start slot.
	GetWeekly(ctx context.Context, instructorId int) ([]Window, error)
	// SetWeekly atomically replaces all windows of the instructor.
	SetWeekly(ctx context.Context, instructorId int, windows []Window) ([]Window, error)
	// SetWeeklyLocal converts windows from the given timezone to UTC slots and replaces the schedule.
	SetWeeklyLocal(ctx context.Context, instructorId int, windows []LocalWindow, timezone string) ([]Window, error)
	IsWithinAvailability(ctx context.Context, instructorId int, dayOfWeek int, start int, duration int) (bool, error)
	// IsAvailableOn additionally rejects ranges overlapping a blocked interval on that date.
	IsAvailableOn(ctx context.Context, instructorId int, date time.Time, start int, duration int) (bool, error)
	AddBlockedInterval(ctx context.Context, blocked BlockedInterval) (BlockedInterval, error)
	RemoveBlockedInterval(ctx context.Context, instructorId int, id int) error
	ListBlockedIntervals(ctx context.Context, instructorId int, from time.Time, to time.Time) ([]BlockedInterval, error)
}

type ServiceImpl struct {
	repo     Repository
	cache    cache.Cache[[]Window]
	eventBus *event_bus.EventBus
	clock    utils.Clock

	// generations counts committed schedule writes per instructor. A cache fill is dropped
	// when a write landed between its read and its store.
	genMu       sync.Mutex
	generations map[int]uint64
}

func NewService(repo Repository, windowCache cache.Cache[[]Window], eventBus *event_bus.EventBus, clock utils.Clock) *ServiceImpl {
	return &ServiceImpl{
		repo:     repo,
		cache:    windowCache,
		eventBus: eventBus,
		clock:    clock,

		generations: make(map[int]uint64),
	}
}

func cacheKey(instructorId int) string {
	return "availability:" + strconv.Itoa(instructorId)
}

func (s *ServiceImpl) GetWeekly(ctx context.Context, instructorId int) ([]Window, error) {
	if windows, ok := s.cache.Get(ctx, cacheKey(instructorId)); ok {
		log.Tracef("availability cache hit for instructor %d", instructorId)
		return windows, nil
	}
	generation := s.generation(instructorId)
	windows, err := s.repo.GetWindows(ctx, instructorId)
	if err != nil {
		log.Errorf("failed to get availability of instructor %d: %v", instructorId, err)
		return nil, err
	}
	s.fill(ctx, instructorId, generation, windows)
	return windows, nil
}

func (s *ServiceImpl) generation(instructorId int) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.generations[instructorId]
}

func (s *ServiceImpl) fill(ctx context.Context, instructorId int, generation uint64, windows []Window) {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	if s.generations[instructorId] != generation {
		log.Debugf("availability of instructor %d changed during read, not caching", instructorId)
		return
	}
	s.cache.Set(ctx, cacheKey(instructorId), windows)
}

// invalidate runs after the write has committed or rolled back.
func (s *ServiceImpl) invalidate(ctx context.Context, instructorId int) {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	s.generations[instructorId]++
	s.cache.DeletePrefix(ctx, cacheKey(instructorId))
}

func (s *ServiceImpl) SetWeekly(ctx context.Context, instructorId int, windows []Window) ([]Window, error) {
	for _, w := range windows {
		if err := w.Validate(); err != nil {
			return nil, err
		}
	}

	var stored []Window
	err := s.repo.WithTransaction(ctx, func(repo Repository) error {
		deleted, err := repo.DeleteWindows(ctx, instructorId)
		if err != nil {
			return fmt.Errorf("delete windows: %w", err)
		}
		log.Debugf("replacing %d availability windows of instructor %d with %d", deleted, instructorId, len(windows))
		stored, err = repo.InsertWindows(ctx, instructorId, windows)
		if err != nil {
			return fmt.Errorf("insert windows: %w", err)
		}
		return nil
	})
	// invalidate even on failure; the next read repopulates from the committed state
	s.invalidate(ctx, instructorId)
	if err != nil {
		log.Errorf("failed to set availability of instructor %d: %v", instructorId, err)
		return nil, err
	}

	s.publishChanged(ctx, instructorId)
	if stored == nil {
		stored = []Window{}
	}
	return stored, nil
}

func (s *ServiceImpl) SetWeeklyLocal(ctx context.Context, instructorId int, windows []LocalWindow, timezone string) ([]Window, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown timezone %q", ErrInvalidInput, timezone)
	}
	today := s.clock.Now().In(loc)

	var utcWindows []Window
	for _, lw := range windows {
		placements, err := localToPlacements(lw, today, loc)
		if err != nil {
			return nil, err
		}
		for _, p := range placements {
			utcWindows = append(utcWindows, Window{
				InstructorId: instructorId,
				DayOfWeek:    slot.Weekday(p.Date),
				StartSlot:    p.Start,
				Duration:     p.Duration,
			})
		}
	}
	return s.SetWeekly(ctx, instructorId, utcWindows)
}

// localToPlacements converts a local window using the offset of its next occurrence
// on or after today.
func localToPlacements(lw LocalWindow, today time.Time, loc *time.Location) ([]slot.Placement, error) {
	if lw.DayOfWeek < time.Sunday || lw.DayOfWeek > time.Saturday {
		return nil, fmt.Errorf("%w: day of week %d out of range", ErrInvalidInput, lw.DayOfWeek)
	}
	if lw.Start.Minute%15 != 0 || lw.End.Minute%15 != 0 {
		return nil, fmt.Errorf("%w: times must be multiples of 15 minutes", ErrInvalidInput)
	}
	startMinutes := lw.Start.Hour*60 + lw.Start.Minute
	endMinutes := lw.End.Hour*60 + lw.End.Minute
	if endMinutes == 0 {
		endMinutes = 24 * 60
	}
	if endMinutes <= startMinutes {
		return nil, fmt.Errorf("%w: window %s-%s ends before it starts", ErrInvalidInput, lw.Start, lw.End)
	}

	offset := (int(lw.DayOfWeek) - int(today.Weekday()) + 7) % 7
	date := today.AddDate(0, 0, offset)
	ref, start := slot.LocalToUTC(lw.Start, date, loc)
	duration := (endMinutes - startMinutes) / 15
	return slot.Split(ref, start, duration), nil
}

func (s *ServiceImpl) IsWithinAvailability(ctx context.Context, instructorId int, dayOfWeek int, start int, duration int) (bool, error) {
	if err := slot.ValidateWeekday(dayOfWeek); err != nil {
		return false, err
	}
	candidate := slot.Range{Start: start, Duration: duration}
	if err := candidate.Validate(); err != nil {
		return false, err
	}
	windows, err := s.GetWeekly(ctx, instructorId)
	if err != nil {
		return false, err
	}
	for _, w := range windows {
		// a single window must hold the whole range; two touching windows do not combine
		if w.DayOfWeek == dayOfWeek && w.Range().Contains(candidate) {
			return true, nil
		}
	}
	return false, nil
}

func (s *ServiceImpl) IsAvailableOn(ctx context.Context, instructorId int, date time.Time, start int, duration int) (bool, error) {
	ok, err := s.IsWithinAvailability(ctx, instructorId, slot.Weekday(date), start, duration)
	if err != nil || !ok {
		return ok, err
	}
	from := slot.ToTime(start, date)
	to := slot.ToTime(start+duration, date)
	blocked, err := s.repo.ListBlocked(ctx, instructorId, from, to)
	if err != nil {
		log.Errorf("failed to list blocked intervals of instructor %d: %v", instructorId, err)
		return false, err
	}
	return len(blocked) == 0, nil
}

func (s *ServiceImpl) AddBlockedInterval(ctx context.Context, blocked BlockedInterval) (BlockedInterval, error) {
	if blocked.Start.IsZero() || blocked.End.IsZero() || !blocked.End.After(blocked.Start) {
		return BlockedInterval{}, fmt.Errorf("%w: blocked interval must end after it starts", ErrInvalidInput)
	}
	blocked.Start = blocked.Start.UTC()
	blocked.End = blocked.End.UTC()
	created, err := s.repo.CreateBlocked(ctx, blocked)
	if err != nil {
		log.Errorf("failed to create blocked interval: %v", err)
		return BlockedInterval{}, err
	}
	s.publishChanged(ctx, blocked.InstructorId)
	return created, nil
}

func (s *ServiceImpl) RemoveBlockedInterval(ctx context.Context, instructorId int, id int) error {
	err := s.repo.DeleteBlocked(ctx, instructorId, id)
	if err != nil {
		if !errors.Is(err, ErrBlockedIntervalNotFound) {
			log.Errorf("failed to delete blocked interval %d: %v", id, err)
		}
		return err
	}
	s.publishChanged(ctx, instructorId)
	return nil
}

func (s *ServiceImpl) ListBlockedIntervals(ctx context.Context, instructorId int, from time.Time, to time.Time) ([]BlockedInterval, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("%w: range end must be after start", ErrInvalidInput)
	}
	return s.repo.ListBlocked(ctx, instructorId, from, to)
}

func (s *ServiceImpl) publishChanged(ctx context.Context, instructorId int) {
	if s.eventBus == nil {
		return
	}
	err := s.eventBus.Publish(event_bus.NewEvent(ctx, event_bus.InstructorCalendarChangedType, event_bus.InstructorCalendarChanged{
		InstructorId: instructorId,
	}))
	if err != nil {
		log.Warnf("failed to publish calendar change of instructor %d: %v", instructorId, err)
	}
}
