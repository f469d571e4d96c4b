package google

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/oauth2"
)

var ErrUnknownNonce = errors.New("unknown authentication nonce")

type Repository interface {
	SaveNonce(ctx context.Context, instructorId int, nonce string) error
	// SaveToken stores the token for the instructor that started the flow with nonce.
	SaveToken(ctx context.Context, nonce string, token *oauth2.Token) (int, error)
	// GetToken returns nil when the instructor has not connected a calendar.
	GetToken(ctx context.Context, instructorId int) (*oauth2.Token, error)
	DeleteToken(ctx context.Context, instructorId int) error
	GetSettings(ctx context.Context, instructorId int) (Settings, error)
	SaveSettings(ctx context.Context, settings Settings) error
}

type repositoryImpl struct {
	db            *pgxpool.Pool
	defaultPolicy AllDayPolicy
}

// NewRepo creates the repository. defaultPolicy applies to instructors without stored settings.
func NewRepo(db *pgxpool.Pool, defaultPolicy AllDayPolicy) Repository {
	if !defaultPolicy.Valid() {
		defaultPolicy = AllDayIgnore
	}
	return &repositoryImpl{db: db, defaultPolicy: defaultPolicy}
}

func (r *repositoryImpl) SaveNonce(ctx context.Context, instructorId int, nonce string) error {
	query := `INSERT INTO google_calendar_auth (instructor_id, nonce) VALUES ($1, $2)
			  ON CONFLICT (instructor_id) DO UPDATE
			  SET nonce = EXCLUDED.nonce, access_token = '', refresh_token = '', expiry = 0`
	_, err := r.db.Exec(ctx, query, instructorId, nonce)
	return err
}

func (r *repositoryImpl) SaveToken(ctx context.Context, nonce string, token *oauth2.Token) (int, error) {
	query := `UPDATE google_calendar_auth SET access_token = $1, refresh_token = $2, expiry = $3
			  WHERE nonce = $4 RETURNING instructor_id`
	var instructorId int
	err := r.db.QueryRow(ctx, query, token.AccessToken, token.RefreshToken, token.Expiry.Unix(), nonce).Scan(&instructorId)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrUnknownNonce
	}
	return instructorId, err
}

func (r *repositoryImpl) GetToken(ctx context.Context, instructorId int) (*oauth2.Token, error) {
	var token oauth2.Token
	var expiry int64
	query := `SELECT access_token, refresh_token, expiry FROM google_calendar_auth WHERE instructor_id = $1`
	err := r.db.QueryRow(ctx, query, instructorId).Scan(&token.AccessToken, &token.RefreshToken, &expiry)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if token.AccessToken == "" && token.RefreshToken == "" {
		return nil, nil
	}
	token.Expiry = time.Unix(expiry, 0)
	return &token, nil
}

func (r *repositoryImpl) DeleteToken(ctx context.Context, instructorId int) error {
	_, err := r.db.Exec(ctx, `DELETE FROM google_calendar_auth WHERE instructor_id = $1`, instructorId)
	return err
}

func (r *repositoryImpl) GetSettings(ctx context.Context, instructorId int) (Settings, error) {
	settings := Settings{InstructorId: instructorId, CalendarId: "primary", AllDayPolicy: r.defaultPolicy}
	query := `SELECT calendar_id, all_day_policy FROM instructor_calendar_settings WHERE instructor_id = $1`
	err := r.db.QueryRow(ctx, query, instructorId).Scan(&settings.CalendarId, &settings.AllDayPolicy)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return Settings{}, err
	}
	return settings, nil
}

func (r *repositoryImpl) SaveSettings(ctx context.Context, settings Settings) error {
	query := `INSERT INTO instructor_calendar_settings (instructor_id, calendar_id, all_day_policy)
			  VALUES ($1, $2, $3)
			  ON CONFLICT (instructor_id) DO UPDATE
			  SET calendar_id = EXCLUDED.calendar_id, all_day_policy = EXCLUDED.all_day_policy`
	_, err := r.db.Exec(ctx, query, settings.InstructorId, settings.CalendarId, settings.AllDayPolicy)
	return err
}
