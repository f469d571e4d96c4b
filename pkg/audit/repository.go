package audit

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
	"github.com/tutorhub/tutorhub/internal/database"
)

type Repository interface {
	Record(ctx context.Context, event Event) (Event, error)
	List(ctx context.Context, subjectType string, subjectId int) ([]Event, error)
}

type repositoryImpl struct {
	q database.Querier
}

func NewRepo(db *pgxpool.Pool) Repository {
	return &repositoryImpl{q: db}
}

func NewTxRepo(tx pgx.Tx) Repository {
	return &repositoryImpl{q: tx}
}

func (r *repositoryImpl) Record(ctx context.Context, event Event) (Event, error) {
	if event.Payload == nil {
		event.Payload = map[string]any{}
	}
	query := `INSERT INTO audit_event (kind, subject_type, subject_id, payload)
			  VALUES ($1, $2, $3, $4) RETURNING id, created_at`
	err := r.q.QueryRow(ctx, query, event.Kind, event.SubjectType, event.SubjectId, event.Payload).
		Scan(&event.Id, &event.CreatedAt)
	if err != nil {
		log.Errorf("failed to record audit event %s for %s %d: %v", event.Kind, event.SubjectType, event.SubjectId, err)
		return Event{}, err
	}
	log.Infof("audit: %s on %s %d", event.Kind, event.SubjectType, event.SubjectId)
	return event, nil
}

func (r *repositoryImpl) List(ctx context.Context, subjectType string, subjectId int) ([]Event, error) {
	query := `SELECT id, kind, subject_type, subject_id, payload, created_at
			  FROM audit_event WHERE subject_type = $1 AND subject_id = $2
			  ORDER BY created_at, id`
	rows, err := r.q.Query(ctx, query, subjectType, subjectId)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.Id, &e.Kind, &e.SubjectType, &e.SubjectId, &e.Payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
