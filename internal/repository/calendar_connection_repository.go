package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/slotbook-api/internal/models"
)

// CalendarConnectionRepository reads the external calendar link of a host.
type CalendarConnectionRepository struct {
	db *sqlx.DB
}

// NewCalendarConnectionRepository builds the repository.
func NewCalendarConnectionRepository(db *sqlx.DB) *CalendarConnectionRepository {
	return &CalendarConnectionRepository{db: db}
}

// FindByHost returns the host's connection or sql.ErrNoRows.
func (r *CalendarConnectionRepository) FindByHost(ctx context.Context, hostID string) (*models.CalendarConnection, error) {
	const query = `SELECT host_id, provider, calendar_id, token, caldav_url, username, password, updated_at
FROM calendar_connections WHERE host_id = $1`
	var conn models.CalendarConnection
	if err := r.db.GetContext(ctx, &conn, query, hostID); err != nil {
		return nil, err
	}
	return &conn, nil
}
