package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

var ErrUnauthenticated = errors.New("instructor has not connected a calendar")

// RawEvent is an upstream calendar event before slot conversion.
type RawEvent struct {
	Id      string
	Summary string
	Start   time.Time
	End     time.Time
	AllDay  bool
}

type EventSource interface {
	List(ctx context.Context, instructorId int, calendarId string, from time.Time, to time.Time) ([]RawEvent, error)
}

type CalendarItem struct {
	ID      string
	Summary string
}

// CalendarSource reads events from Google Calendar. The instructor's delegated token is tried
// first; the shared service account is used when there is none or it stopped working.
type CalendarSource struct {
	repo        Repository
	oauthConfig *oauth2.Config
	shared      *jwt.Config
	impersonate bool
}

func NewCalendarSource(repo Repository, oauthConfig *oauth2.Config, shared *jwt.Config, impersonate bool) *CalendarSource {
	return &CalendarSource{repo: repo, oauthConfig: oauthConfig, shared: shared, impersonate: impersonate}
}

// LoadSharedCredentials reads a service account JSON key. An empty path means no shared credential.
func LoadSharedCredentials(path string) (*jwt.Config, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read shared Google credentials: %w", err)
	}
	cfg, err := google.JWTConfigFromJSON(data, gcal.CalendarReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse shared Google credentials: %w", err)
	}
	return cfg, nil
}

func (c *CalendarSource) List(ctx context.Context, instructorId int, calendarId string, from time.Time, to time.Time) ([]RawEvent, error) {
	client, err := c.delegatedClient(ctx, instructorId)
	if err != nil {
		log.Errorf("unable to load Google token for instructor %d: %v", instructorId, err)
	}
	if client != nil {
		events, err := listEvents(ctx, client, calendarId, from, to)
		if err == nil || c.shared == nil {
			return events, err
		}
		log.Warnf("delegated calendar access failed for instructor %d, using shared credential: %v", instructorId, err)
	}
	if c.shared == nil {
		return nil, ErrUnauthenticated
	}
	return listEvents(ctx, c.sharedClient(ctx, calendarId), calendarId, from, to)
}

// ListCalendars lists the calendars visible through the instructor's own token.
func (c *CalendarSource) ListCalendars(ctx context.Context, instructorId int) ([]CalendarItem, error) {
	client, err := c.delegatedClient(ctx, instructorId)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, ErrUnauthenticated
	}
	service, err := gcal.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Calendar client: %w", err)
	}
	calendars, err := service.CalendarList.List().Context(ctx).Do()
	if err != nil {
		err := fmt.Errorf("unable to retrieve calendars from Google Calendar: %v", err)
		log.Error(err)
		return nil, err
	}
	items := make([]CalendarItem, 0, len(calendars.Items))
	for _, cal := range calendars.Items {
		items = append(items, CalendarItem{ID: cal.Id, Summary: cal.Summary})
	}
	return items, nil
}

func (c *CalendarSource) delegatedClient(ctx context.Context, instructorId int) (*http.Client, error) {
	token, err := c.repo.GetToken(ctx, instructorId)
	if err != nil || token == nil {
		return nil, err
	}
	return c.oauthConfig.Client(ctx, token), nil
}

func (c *CalendarSource) sharedClient(ctx context.Context, calendarId string) *http.Client {
	cfg := *c.shared
	if c.impersonate && strings.Contains(calendarId, "@") {
		cfg.Subject = calendarId
	}
	return cfg.Client(ctx)
}

func listEvents(ctx context.Context, client *http.Client, calendarId string, from time.Time, to time.Time) ([]RawEvent, error) {
	service, err := gcal.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Calendar client: %w", err)
	}
	var events []RawEvent
	err = service.Events.List(calendarId).
		TimeMin(from.Format(time.RFC3339)).
		TimeMax(to.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		Pages(ctx, func(page *gcal.Events) error {
			loc := time.UTC
			if page.TimeZone != "" {
				if l, err := time.LoadLocation(page.TimeZone); err == nil {
					loc = l
				}
			}
			for _, item := range page.Items {
				if e, ok := toRawEvent(item, loc); ok {
					events = append(events, e)
				}
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve events from Google Calendar: %w", err)
	}
	return events, nil
}

// toRawEvent converts an upstream event. All-day dates are placed in the calendar's timezone.
// Cancelled and free (transparent) events do not block time.
func toRawEvent(item *gcal.Event, loc *time.Location) (RawEvent, bool) {
	if item.Status == "cancelled" || item.Transparency == "transparent" || item.Start == nil || item.End == nil {
		return RawEvent{}, false
	}
	e := RawEvent{Id: item.Id, Summary: item.Summary}
	var startErr, endErr error
	if item.Start.Date != "" {
		e.AllDay = true
		e.Start, startErr = time.ParseInLocation(time.DateOnly, item.Start.Date, loc)
		e.End, endErr = time.ParseInLocation(time.DateOnly, item.End.Date, loc)
	} else {
		e.Start, startErr = time.Parse(time.RFC3339, item.Start.DateTime)
		e.End, endErr = time.Parse(time.RFC3339, item.End.DateTime)
	}
	if startErr != nil || endErr != nil || !e.End.After(e.Start) {
		log.Warnf("ignoring calendar event %s with unreadable times: %s - %s", item.Id, item.Start.DateTime, item.End.DateTime)
		return RawEvent{}, false
	}
	return e, true
}
