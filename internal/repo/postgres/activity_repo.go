package postgres

import (
	"context"

	"github.com/farmhub/auctionhub/internal/activity"
	"github.com/farmhub/auctionhub/internal/observability"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ActivityRepo is the append-only audit trail behind the recent-activity
// dashboard feed.
type ActivityRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewActivityRepo(pool *pgxpool.Pool, prom *observability.Prom) *ActivityRepo {
	return &ActivityRepo{pool: pool, prom: prom}
}

func (r *ActivityRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func (r *ActivityRepo) Record(ctx context.Context, e activity.Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	return r.observe("activity.record", func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO activity_log (id, actor_id, actor_name, actor_role, action, resource,
			   resource_id, details, ip_address, user_agent, status, severity, created_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
			e.ID, e.ActorID, e.ActorName, e.ActorRole, e.Action, e.Resource,
			e.ResourceID, e.Details, e.IPAddress, e.UserAgent, e.Status, e.Severity, e.CreatedAt,
		)
		return err
	})
}

func (r *ActivityRepo) Recent(ctx context.Context, limit int, actions []string) ([]activity.Entry, error) {
	if limit <= 0 {
		limit = 20
	}

	var rows pgx.Rows
	var err error

	err = r.observe("activity.recent", func() error {
		rows, err = r.pool.Query(ctx,
			`SELECT id, actor_id, actor_name, actor_role, action, resource,
			        resource_id, details, ip_address, user_agent, status, severity, created_at
			 FROM activity_log
			 WHERE action = ANY($1)
			 ORDER BY created_at DESC, id DESC
			 LIMIT $2`,
			actions, limit)
		return err
	})

	if err != nil {
		return nil, err
	}

	defer rows.Close()

	out := make([]activity.Entry, 0, limit)

	for rows.Next() {
		var e activity.Entry

		err = rows.Scan(
			&e.ID, &e.ActorID, &e.ActorName, &e.ActorRole, &e.Action, &e.Resource,
			&e.ResourceID, &e.Details, &e.IPAddress, &e.UserAgent, &e.Status, &e.Severity, &e.CreatedAt,
		)
		if err != nil {
			return nil, err
		}

		out = append(out, e)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return out, nil
}
