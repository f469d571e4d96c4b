package credits

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/tutorhub/tutorhub/internal/rest"
	"github.com/tutorhub/tutorhub/pkg/user"
)

type TransactionDTO struct {
	Delta          int       `json:"delta"`
	Reason         string    `json:"reason"`
	BookingId      int       `json:"bookingId,omitempty"`
	SubscriptionId int       `json:"subscriptionId,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

type BalanceDTO struct {
	Balance      int              `json:"balance"`
	Transactions []TransactionDTO `json:"transactions"`
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	currentUser, err := user.CurrentUser(r.Context())
	if err != nil {
		rest.WriteError(w, http.StatusForbidden, "User not found", "")
		return
	}
	balance, err := h.service.Balance(r.Context(), currentUser.Id)
	if err != nil {
		rest.WriteError(w, http.StatusInternalServerError, "Failed to get credit balance", "")
		return
	}
	history, err := h.service.History(r.Context(), currentUser.Id)
	if err != nil {
		rest.WriteError(w, http.StatusInternalServerError, "Failed to get credit history", "")
		return
	}
	dto := BalanceDTO{Balance: balance, Transactions: make([]TransactionDTO, 0, len(history))}
	for _, t := range history {
		dto.Transactions = append(dto.Transactions, TransactionDTO{
			Delta:          t.Delta,
			Reason:         t.Reason,
			BookingId:      t.BookingId,
			SubscriptionId: t.SubscriptionId,
			CreatedAt:      t.CreatedAt,
		})
	}
	rest.WriteJSON(w, http.StatusOK, dto)
}

// Adjust lets admins correct a user's balance.
func (h *Handler) Adjust(w http.ResponseWriter, r *http.Request) {
	currentUser, err := user.CurrentUser(r.Context())
	if err != nil || !currentUser.IsAdmin() {
		rest.WriteError(w, http.StatusForbidden, "Not allowed", "")
		return
	}
	userId, err := rest.IntVar(r, "id")
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid user id", "")
		return
	}
	var body struct {
		Delta int `json:"delta"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Delta == 0 {
		rest.WriteError(w, http.StatusBadRequest, "Invalid request body format", "delta must be a non-zero integer")
		return
	}
	balance, err := h.service.Adjust(r.Context(), userId, body.Delta)
	if err != nil {
		if errors.Is(err, ErrInsufficientCredits) {
			rest.WriteError(w, http.StatusConflict, "INSUFFICIENT_CREDITS", "")
			return
		}
		rest.WriteError(w, http.StatusInternalServerError, "Failed to adjust credits", "")
		return
	}
	rest.WriteJSON(w, http.StatusOK, BalanceDTO{Balance: balance, Transactions: []TransactionDTO{}})
}
