package google

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/tutorhub/tutorhub/internal/config"
	"github.com/tutorhub/tutorhub/internal/event_bus"
	"github.com/tutorhub/tutorhub/internal/rest"
	"github.com/tutorhub/tutorhub/pkg/user"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
)

type googleAuthRedirect struct {
	RedirectUrl string `json:"redirectUrl"`
}

type Auth struct {
	repo        Repository
	oauthConfig *oauth2.Config
	eventBus    *event_bus.EventBus
}

func NewOAuthConfig(cfg config.Application) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.Google.ClientId,
		ClientSecret: cfg.Google.ClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  cfg.Host + "/api/integrations/google/auth/callback",
		Scopes:       []string{calendar.CalendarReadonlyScope},
	}
}

func NewAuth(repo Repository, oauthConfig *oauth2.Config, eventBus *event_bus.EventBus) *Auth {
	return &Auth{repo: repo, oauthConfig: oauthConfig, eventBus: eventBus}
}

func (g *Auth) OAuthLogin(w http.ResponseWriter, r *http.Request) {
	currentUser, err := user.CurrentUser(r.Context())
	if err != nil {
		log.Error("unable to retrieve current user: ", err)
		rest.WriteError(w, http.StatusForbidden, "User not found", "")
		return
	}
	if !currentUser.IsInstructor() {
		rest.WriteError(w, http.StatusForbidden, "Only instructors can connect a calendar", "")
		return
	}

	stateNonce := uuid.New().String()
	finalUrl := r.URL.Query().Get("finalUrl")

	if err := g.repo.SaveNonce(r.Context(), currentUser.Id, stateNonce); err != nil {
		log.Errorf("failed to store Google auth nonce for instructor %d: %v", currentUser.Id, err)
		rest.WriteError(w, http.StatusInternalServerError, "Failed to handle Google authentication", "")
		return
	}
	g.publishChanged(r.Context(), currentUser.Id)

	log.Tracef("Redirecting to Google auth URL with nonce: %s", stateNonce)
	u := g.oauthConfig.AuthCodeURL(finalUrl+"|"+stateNonce, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	rest.WriteJSON(w, http.StatusOK, googleAuthRedirect{RedirectUrl: u})
}

func (g *Auth) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	code := r.FormValue("code")
	state := r.FormValue("state")

	parts := strings.SplitN(state, "|", 2)
	if len(parts) != 2 {
		rest.WriteError(w, http.StatusBadRequest, "Invalid state", "")
		return
	}
	finalUrl := parts[0]
	nonce := parts[1]

	token, err := g.oauthConfig.Exchange(r.Context(), code)
	if err != nil {
		log.Errorf("unable to exchange code for token: %v", err)
		http.Redirect(w, r, finalUrl+"?success=false", http.StatusFound)
		return
	}

	instructorId, err := g.repo.SaveToken(r.Context(), nonce, token)
	if err != nil {
		log.Errorf("unable to store Google auth token for nonce: %v", err)
		http.Redirect(w, r, finalUrl+"?success=false", http.StatusFound)
		return
	}
	g.publishChanged(r.Context(), instructorId)
	log.Debugf("Stored Google auth token for instructor %d", instructorId)
	http.Redirect(w, r, finalUrl+"?success=true", http.StatusFound)
}

func (g *Auth) OAuthLogout(w http.ResponseWriter, r *http.Request) {
	instructorId, err := user.CurrentId(r.Context())
	if err != nil {
		log.Error("unable to retrieve current user: ", err)
		rest.WriteError(w, http.StatusForbidden, "User not found", "")
		return
	}
	if err := g.repo.DeleteToken(r.Context(), instructorId); err != nil {
		log.Errorf("failed to delete Google auth row for instructor %d: %v", instructorId, err)
		rest.WriteError(w, http.StatusInternalServerError, "Failed to handle Google authentication", "")
		return
	}
	g.publishChanged(r.Context(), instructorId)
	w.WriteHeader(http.StatusNoContent)
}

func (g *Auth) publishChanged(ctx context.Context, instructorId int) {
	if g.eventBus == nil {
		return
	}
	err := g.eventBus.Publish(event_bus.NewEvent(ctx, event_bus.InstructorCalendarChangedType,
		event_bus.InstructorCalendarChanged{InstructorId: instructorId}))
	if err != nil {
		log.Errorf("failed to publish calendar change for instructor %d: %v", instructorId, err)
	}
}
