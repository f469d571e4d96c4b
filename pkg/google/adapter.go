package google

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tutorhub/tutorhub/internal/cache"
	"github.com/tutorhub/tutorhub/internal/event_bus"
	"github.com/tutorhub/tutorhub/internal/metrics"
	"github.com/tutorhub/tutorhub/pkg/availability"
	"github.com/tutorhub/tutorhub/pkg/slot"
	"golang.org/x/sync/singleflight"
)

const defaultTimeout = 5 * time.Second

type AvailabilityReader interface {
	GetWeekly(ctx context.Context, instructorId int) ([]availability.Window, error)
}

// Adapter turns an instructor's external calendar into busy blocks. Upstream failures are
// absorbed: the caller gets the last known blocks or none at all.
type Adapter struct {
	source       EventSource
	repo         Repository
	availability AvailabilityReader
	cache        cache.Cache[[]Block]
	timeout      time.Duration
	group        singleflight.Group
}

func NewAdapter(source EventSource, repo Repository, availability AvailabilityReader, blockCache cache.Cache[[]Block], timeout time.Duration) *Adapter {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Adapter{
		source:       source,
		repo:         repo,
		availability: availability,
		cache:        blockCache,
		timeout:      timeout,
	}
}

func instructorPrefix(instructorId int) string {
	return fmt.Sprintf("gcal:%d:", instructorId)
}

func cacheKey(instructorId int, from time.Time, to time.Time) string {
	return fmt.Sprintf("%s%d:%d", instructorPrefix(instructorId), from.Unix(), to.Unix())
}

// GetEvents returns busy blocks overlapping [from, to), sorted by date and start slot.
func (a *Adapter) GetEvents(ctx context.Context, instructorId int, from time.Time, to time.Time) []Block {
	key := cacheKey(instructorId, from, to)
	if blocks, ok := a.cache.Get(ctx, key); ok {
		log.Debugf("external calendar cache hit for instructor %d", instructorId)
		metrics.ExternalCalendarFetches.WithLabelValues("cache_hit").Inc()
		return blocks
	}

	result, err, _ := a.group.Do(key, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
		defer cancel()
		blocks, err := a.fetch(fetchCtx, instructorId, from, to)
		if err != nil {
			return nil, err
		}
		a.cache.Set(fetchCtx, key, blocks)
		return blocks, nil
	})
	if err == nil {
		metrics.ExternalCalendarFetches.WithLabelValues("ok").Inc()
		return result.([]Block)
	}

	if errors.Is(err, ErrUnauthenticated) {
		log.Debugf("instructor %d has no external calendar", instructorId)
		metrics.ExternalCalendarFetches.WithLabelValues("not_connected").Inc()
		return []Block{}
	}
	if stale, ok := a.cache.GetStale(ctx, key); ok {
		log.Warnf("external calendar unavailable for instructor %d, serving stale blocks: %v", instructorId, err)
		metrics.ExternalCalendarFetches.WithLabelValues("stale_fallback").Inc()
		return stale
	}
	log.Warnf("external calendar unavailable for instructor %d, no blocks applied: %v", instructorId, err)
	metrics.ExternalCalendarFetches.WithLabelValues("empty_fallback").Inc()
	return []Block{}
}

func (a *Adapter) fetch(ctx context.Context, instructorId int, from time.Time, to time.Time) ([]Block, error) {
	settings, err := a.repo.GetSettings(ctx, instructorId)
	if err != nil {
		return nil, err
	}
	events, err := a.source.List(ctx, instructorId, settings.CalendarId, from, to)
	if err != nil {
		return nil, err
	}

	var windows []availability.Window
	windowsLoaded := false
	blocks := make([]Block, 0, len(events))
	for _, e := range events {
		if !e.AllDay {
			for _, p := range slot.Cover(e.Start, e.End) {
				blocks = append(blocks, Block{EventId: e.Id, Summary: e.Summary, Date: p.Date, StartSlot: p.Start, Duration: p.Duration})
			}
			continue
		}
		if settings.AllDayPolicy != AllDayBlock {
			continue
		}
		if !windowsLoaded {
			windows, err = a.availability.GetWeekly(ctx, instructorId)
			if err != nil {
				return nil, err
			}
			windowsLoaded = true
		}
		blocks = append(blocks, allDayBlocks(e, windows)...)
	}

	sort.SliceStable(blocks, func(i, j int) bool {
		if !blocks[i].Date.Equal(blocks[j].Date) {
			return blocks[i].Date.Before(blocks[j].Date)
		}
		return blocks[i].StartSlot < blocks[j].StartSlot
	})
	return blocks, nil
}

// allDayBlocks blocks only the availability windows the event covers, never whole days.
func allDayBlocks(e RawEvent, windows []availability.Window) []Block {
	var blocks []Block
	for day := slot.Date(e.Start); day.Before(e.End); day = day.AddDate(0, 0, 1) {
		lo := max(slot.Extended(day, e.Start), 0)
		hi := slot.Extended(day, e.End)
		if !slot.Aligned(e.End) {
			hi++
		}
		hi = min(hi, slot.PerDay)
		weekday := slot.Weekday(day)
		for _, w := range windows {
			if w.DayOfWeek != weekday {
				continue
			}
			start := max(w.StartSlot, lo)
			end := min(w.StartSlot+w.Duration, hi)
			if end > start {
				blocks = append(blocks, Block{EventId: e.Id, Summary: e.Summary, Date: day, StartSlot: start, Duration: end - start})
			}
		}
	}
	return blocks
}

// Invalidate drops every cached range of the instructor.
func (a *Adapter) Invalidate(ctx context.Context, instructorId int) {
	a.cache.DeletePrefix(ctx, instructorPrefix(instructorId))
}

// Subscribe invalidates the cache whenever the instructor's calendar inputs change.
func (a *Adapter) Subscribe(bus *event_bus.EventBus) (unsubscribe func()) {
	return event_bus.SubscribeTyped(bus, event_bus.InstructorCalendarChangedType,
		func(e event_bus.EventT[event_bus.InstructorCalendarChanged]) error {
			log.Debugf("invalidating external calendar cache for instructor %d", e.Data.InstructorId)
			a.Invalidate(e.Context(), e.Data.InstructorId)
			return nil
		})
}
