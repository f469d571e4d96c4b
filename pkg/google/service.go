package google

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/tutorhub/tutorhub/internal/event_bus"
	"github.com/tutorhub/tutorhub/pkg/slot"
)

var ErrInvalidInput = slot.ErrInvalidInput

type CalendarLister interface {
	ListCalendars(ctx context.Context, instructorId int) ([]CalendarItem, error)
}

type Service interface {
	GetSettings(ctx context.Context, instructorId int) (Settings, error)
	UpdateSettings(ctx context.Context, settings Settings) (Settings, error)
	ListCalendars(ctx context.Context, instructorId int) ([]CalendarItem, error)
}

type ServiceImpl struct {
	repo     Repository
	lister   CalendarLister
	eventBus *event_bus.EventBus
}

func NewService(repo Repository, lister CalendarLister, eventBus *event_bus.EventBus) *ServiceImpl {
	return &ServiceImpl{repo: repo, lister: lister, eventBus: eventBus}
}

func (s *ServiceImpl) GetSettings(ctx context.Context, instructorId int) (Settings, error) {
	return s.repo.GetSettings(ctx, instructorId)
}

func (s *ServiceImpl) UpdateSettings(ctx context.Context, settings Settings) (Settings, error) {
	settings.CalendarId = strings.TrimSpace(settings.CalendarId)
	if settings.CalendarId == "" {
		settings.CalendarId = "primary"
	}
	if !settings.AllDayPolicy.Valid() {
		return Settings{}, fmt.Errorf("%w: all-day policy %q", ErrInvalidInput, settings.AllDayPolicy)
	}
	if err := s.repo.SaveSettings(ctx, settings); err != nil {
		log.Errorf("failed to save calendar settings for instructor %d: %v", settings.InstructorId, err)
		return Settings{}, err
	}
	if s.eventBus != nil {
		err := s.eventBus.Publish(event_bus.NewEvent(ctx, event_bus.InstructorCalendarChangedType,
			event_bus.InstructorCalendarChanged{InstructorId: settings.InstructorId}))
		if err != nil {
			log.Errorf("failed to publish calendar change for instructor %d: %v", settings.InstructorId, err)
		}
	}
	return settings, nil
}

func (s *ServiceImpl) ListCalendars(ctx context.Context, instructorId int) ([]CalendarItem, error) {
	return s.lister.ListCalendars(ctx, instructorId)
}
