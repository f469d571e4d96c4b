package availability

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tutorhub/tutorhub/internal/rest"
	"github.com/tutorhub/tutorhub/pkg/slot"
	"github.com/tutorhub/tutorhub/pkg/user"
)

type WindowDTO struct {
	Id        int `json:"id,omitempty"`
	DayOfWeek int `json:"dayOfWeek"`
	StartSlot int `json:"startSlot"`
	Duration  int `json:"duration"`
}

type LocalWindowDTO struct {
	DayOfWeek int    `json:"dayOfWeek"`
	Start     string `json:"start"`
	End       string `json:"end"`
}

type SetWeeklyDTO struct {
	Windows []WindowDTO `json:"windows"`
	// Timezone and LocalWindows are used instead of Windows when the schedule is entered in local time.
	Timezone     string           `json:"timezone,omitempty"`
	LocalWindows []LocalWindowDTO `json:"localWindows,omitempty"`
}

type BlockedIntervalDTO struct {
	Id     int       `json:"id,omitempty"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Reason string    `json:"reason"`
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// GetWeekly godoc
// @Summary Get weekly availability
// @Description Windows sorted by day of week and start slot, in UTC slots
// @Tags Availability
// @Produce json
// @Param id path int true "Instructor ID"
// @Success 200 {array} WindowDTO
// @Router /api/instructors/{id}/availability [get]
// @Security XUserId
func (h *Handler) GetWeekly(w http.ResponseWriter, r *http.Request) {
	instructorId, err := rest.IntVar(r, "id")
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid instructor id", "")
		return
	}
	windows, err := h.service.GetWeekly(r.Context(), instructorId)
	if err != nil {
		rest.WriteError(w, http.StatusInternalServerError, "Failed to get availability", "")
		return
	}
	rest.WriteJSON(w, http.StatusOK, toWindowDTOs(windows))
}

// SetWeekly godoc
// @Summary Replace weekly availability
// @Tags Availability
// @Accept json
// @Produce json
// @Param id path int true "Instructor ID"
// @Param windows body SetWeeklyDTO true "New schedule"
// @Success 200 {array} WindowDTO
// @Failure 400 {object} rest.ErrorResponse "Invalid window"
// @Failure 403 {object} rest.ErrorResponse "Not allowed"
// @Router /api/instructors/{id}/availability [put]
// @Security XUserId
func (h *Handler) SetWeekly(w http.ResponseWriter, r *http.Request) {
	instructorId, ok := h.authorize(w, r)
	if !ok {
		return
	}

	var body SetWeeklyDTO
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid request body format", "")
		return
	}

	var windows []Window
	var err error
	if body.Timezone != "" {
		localWindows := make([]LocalWindow, 0, len(body.LocalWindows))
		for _, dto := range body.LocalWindows {
			lw, parseErr := fromLocalWindowDTO(dto)
			if parseErr != nil {
				rest.WriteError(w, http.StatusBadRequest, "Invalid window", parseErr.Error())
				return
			}
			localWindows = append(localWindows, lw)
		}
		windows, err = h.service.SetWeeklyLocal(r.Context(), instructorId, localWindows, body.Timezone)
	} else {
		input := make([]Window, 0, len(body.Windows))
		for _, dto := range body.Windows {
			input = append(input, Window{
				InstructorId: instructorId,
				DayOfWeek:    dto.DayOfWeek,
				StartSlot:    dto.StartSlot,
				Duration:     dto.Duration,
			})
		}
		windows, err = h.service.SetWeekly(r.Context(), instructorId, input)
	}
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			rest.WriteError(w, http.StatusBadRequest, "Invalid window", err.Error())
			return
		}
		rest.WriteError(w, http.StatusInternalServerError, "Failed to set availability", "")
		return
	}
	rest.WriteJSON(w, http.StatusOK, toWindowDTOs(windows))
}

func (h *Handler) ListBlocked(w http.ResponseWriter, r *http.Request) {
	instructorId, err := rest.IntVar(r, "id")
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid instructor id", "")
		return
	}
	from, errFrom := time.Parse(time.RFC3339, r.URL.Query().Get("from"))
	to, errTo := time.Parse(time.RFC3339, r.URL.Query().Get("to"))
	if errFrom != nil || errTo != nil {
		rest.WriteError(w, http.StatusBadRequest, "Incorrect date format", "from and to must be in RFC3339 format")
		return
	}
	intervals, err := h.service.ListBlockedIntervals(r.Context(), instructorId, from, to)
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			rest.WriteError(w, http.StatusBadRequest, "Invalid range", err.Error())
			return
		}
		rest.WriteError(w, http.StatusInternalServerError, "Failed to list blocked intervals", "")
		return
	}
	dtos := make([]BlockedIntervalDTO, 0, len(intervals))
	for _, b := range intervals {
		dtos = append(dtos, toBlockedIntervalDTO(b))
	}
	rest.WriteJSON(w, http.StatusOK, dtos)
}

func (h *Handler) AddBlocked(w http.ResponseWriter, r *http.Request) {
	instructorId, ok := h.authorize(w, r)
	if !ok {
		return
	}
	var body BlockedIntervalDTO
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid request body format", "")
		return
	}
	created, err := h.service.AddBlockedInterval(r.Context(), BlockedInterval{
		InstructorId: instructorId,
		Start:        body.Start,
		End:          body.End,
		Reason:       body.Reason,
	})
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			rest.WriteError(w, http.StatusBadRequest, "Invalid blocked interval", err.Error())
			return
		}
		rest.WriteError(w, http.StatusInternalServerError, "Failed to create blocked interval", "")
		return
	}
	rest.WriteJSON(w, http.StatusCreated, toBlockedIntervalDTO(created))
}

func (h *Handler) RemoveBlocked(w http.ResponseWriter, r *http.Request) {
	instructorId, ok := h.authorize(w, r)
	if !ok {
		return
	}
	id, err := rest.IntVar(r, "bid")
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid blocked interval id", "")
		return
	}
	if err := h.service.RemoveBlockedInterval(r.Context(), instructorId, id); err != nil {
		if errors.Is(err, ErrBlockedIntervalNotFound) {
			rest.WriteError(w, http.StatusNotFound, "Blocked interval not found", "")
			return
		}
		rest.WriteError(w, http.StatusInternalServerError, "Failed to delete blocked interval", "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// authorize resolves the instructor path id and checks the current user may manage it.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request) (int, bool) {
	instructorId, err := rest.IntVar(r, "id")
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid instructor id", "")
		return 0, false
	}
	currentUser, err := user.CurrentUser(r.Context())
	if err != nil {
		rest.WriteError(w, http.StatusForbidden, "User not found", "")
		return 0, false
	}
	if !currentUser.Manages(instructorId) {
		log.Debugf("user %d is not allowed to manage instructor %d", currentUser.Id, instructorId)
		rest.WriteError(w, http.StatusForbidden, "Not allowed", "")
		return 0, false
	}
	return instructorId, true
}

func fromLocalWindowDTO(dto LocalWindowDTO) (LocalWindow, error) {
	start, err := slot.ParseTimeOfDay(dto.Start)
	if err != nil {
		return LocalWindow{}, err
	}
	end, err := slot.ParseTimeOfDay(dto.End)
	if err != nil {
		return LocalWindow{}, err
	}
	return LocalWindow{DayOfWeek: time.Weekday(dto.DayOfWeek), Start: start, End: end}, nil
}

func toWindowDTOs(windows []Window) []WindowDTO {
	dtos := make([]WindowDTO, 0, len(windows))
	for _, w := range windows {
		dtos = append(dtos, WindowDTO{Id: w.Id, DayOfWeek: w.DayOfWeek, StartSlot: w.StartSlot, Duration: w.Duration})
	}
	return dtos
}

func toBlockedIntervalDTO(b BlockedInterval) BlockedIntervalDTO {
	return BlockedIntervalDTO{Id: b.Id, Start: b.Start, End: b.End, Reason: b.Reason}
}
