package google

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tutorhub/tutorhub/internal/rest"
	"github.com/tutorhub/tutorhub/pkg/user"
)

type CalendarItemDto struct {
	Id      string `json:"id"`
	Summary string `json:"summary"`
}

type SettingsDto struct {
	CalendarId   string `json:"calendarId"`
	AllDayPolicy string `json:"allDayPolicy"`
}

type Handler struct {
	service Service
}

func NewHandler(s Service) *Handler {
	return &Handler{s}
}

func (h *Handler) ListCalendars(w http.ResponseWriter, r *http.Request) {
	instructor, ok := currentInstructor(w, r)
	if !ok {
		return
	}
	calendars, err := h.service.ListCalendars(r.Context(), instructor.Id)
	if err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			rest.WriteError(w, http.StatusForbidden, "Calendar not connected", "")
			return
		}
		rest.WriteError(w, http.StatusInternalServerError, "Failed to list calendars", "")
		return
	}

	calendarItems := make([]CalendarItemDto, 0, len(calendars))
	for _, c := range calendars {
		calendarItems = append(calendarItems, CalendarItemDto{Id: c.ID, Summary: c.Summary})
	}
	rest.WriteJSON(w, http.StatusOK, calendarItems)
}

func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	instructor, ok := currentInstructor(w, r)
	if !ok {
		return
	}
	settings, err := h.service.GetSettings(r.Context(), instructor.Id)
	if err != nil {
		rest.WriteError(w, http.StatusInternalServerError, "Failed to get calendar settings", "")
		return
	}
	rest.WriteJSON(w, http.StatusOK, toSettingsDto(settings))
}

func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	instructor, ok := currentInstructor(w, r)
	if !ok {
		return
	}
	var dto SettingsDto
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid request body format", "")
		return
	}
	settings, err := h.service.UpdateSettings(r.Context(), Settings{
		InstructorId: instructor.Id,
		CalendarId:   dto.CalendarId,
		AllDayPolicy: AllDayPolicy(dto.AllDayPolicy),
	})
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			rest.WriteError(w, http.StatusBadRequest, "Invalid calendar settings", err.Error())
			return
		}
		rest.WriteError(w, http.StatusInternalServerError, "Failed to save calendar settings", "")
		return
	}
	rest.WriteJSON(w, http.StatusOK, toSettingsDto(settings))
}

func currentInstructor(w http.ResponseWriter, r *http.Request) (user.User, bool) {
	currentUser, err := user.CurrentUser(r.Context())
	if err != nil || !currentUser.IsInstructor() {
		rest.WriteError(w, http.StatusForbidden, "Only instructors have calendar settings", "")
		return user.User{}, false
	}
	return currentUser, true
}

func toSettingsDto(s Settings) SettingsDto {
	return SettingsDto{CalendarId: s.CalendarId, AllDayPolicy: string(s.AllDayPolicy)}
}
