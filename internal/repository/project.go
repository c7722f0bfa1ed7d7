package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/datadispatcher/internal/domain/model"
)

// ProjectRepository — интерфейс доступа к таблицам projects и project_users.
type ProjectRepository interface {
	// Create создаёт проект и заполняет ID и CreatedAt.
	Create(ctx context.Context, p *model.Project) error
	// GetByID возвращает проект по ID.
	GetByID(ctx context.Context, id int64) (*model.Project, error)
	// LockByID возвращает проект, блокируя строку до конца транзакции (FOR UPDATE).
	LockByID(ctx context.Context, id int64) (*model.Project, error)
	// List возвращает проекты, опционально отфильтрованные по состоянию.
	List(ctx context.Context, state *model.ProjectState, limit, offset int) ([]*model.Project, error)
	// ActiveIDs возвращает ID всех активных проектов.
	ActiveIDs(ctx context.Context) ([]int64, error)
	// SetState меняет состояние проекта. ended_at ставится для конечных состояний
	// и сбрасывается для остальных.
	SetState(ctx context.Context, id int64, state model.ProjectState) error
	// AbandonIdle переводит простаивающие активные проекты в abandoned.
	AbandonIdle(ctx context.Context) ([]int64, error)
}

// projectRepo — реализация ProjectRepository.
type projectRepo struct {
	db DBTX
}

// NewProjectRepository создаёт репозиторий проектов.
func NewProjectRepository(db DBTX) ProjectRepository {
	return &projectRepo{db: db}
}

const projectColumns = `
	p.id, p.owner, p.state, p.created_at, p.ended_at, p.attributes, p.query,
	p.worker_timeout_seconds, p.idle_timeout_seconds,
	COALESCE((SELECT array_agg(u.username ORDER BY u.username) FROM project_users u WHERE u.project_id = p.id), '{}')`

// scanProject сканирует строку с колонками projectColumns.
func scanProject(row pgx.Row) (*model.Project, error) {
	p := &model.Project{}
	var workerTimeout, idleTimeout *float64
	err := row.Scan(
		&p.ID, &p.Owner, &p.State, &p.CreatedAt, &p.EndedAt, &p.Attributes, &p.Query,
		&workerTimeout, &idleTimeout, &p.Users,
	)
	if err != nil {
		return nil, err
	}
	p.WorkerTimeout = secondsDuration(workerTimeout)
	p.IdleTimeout = secondsDuration(idleTimeout)
	return p, nil
}

func (r *projectRepo) Create(ctx context.Context, p *model.Project) error {
	query := `
		INSERT INTO projects (owner, state, attributes, query, worker_timeout_seconds, idle_timeout_seconds)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	if p.State == "" {
		p.State = model.ProjectActive
	}
	p.Attributes = attrs(p.Attributes)

	err := r.db.QueryRow(ctx, query,
		p.Owner, p.State, p.Attributes, p.Query,
		durationSeconds(p.WorkerTimeout), durationSeconds(p.IdleTimeout),
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка создания проекта: %w", err)
	}

	for _, u := range p.Users {
		_, err := r.db.Exec(ctx,
			`INSERT INTO project_users (project_id, username) VALUES ($1, $2)`, p.ID, u)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: пользователь %s указан дважды", ErrConflict, u)
			}
			return fmt.Errorf("ошибка добавления пользователя проекта: %w", err)
		}
	}
	return nil
}

func (r *projectRepo) GetByID(ctx context.Context, id int64) (*model.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects p WHERE p.id = $1`

	p, err := scanProject(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения проекта: %w", err)
	}
	return p, nil
}

func (r *projectRepo) LockByID(ctx context.Context, id int64) (*model.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects p WHERE p.id = $1 FOR UPDATE OF p`

	p, err := scanProject(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка блокировки проекта: %w", err)
	}
	return p, nil
}

func (r *projectRepo) List(ctx context.Context, state *model.ProjectState, limit, offset int) ([]*model.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects p`
	args := []any{limit, offset}
	if state != nil {
		query += ` WHERE p.state = $3`
		args = append(args, *state)
	}
	query += ` ORDER BY p.id DESC LIMIT $1 OFFSET $2`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка проектов: %w", err)
	}
	defer rows.Close()

	var result []*model.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования проекта: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (r *projectRepo) ActiveIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM projects WHERE state = 'active' ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения активных проектов: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("ошибка сканирования активных проектов: %w", err)
	}
	return ids, nil
}

func (r *projectRepo) SetState(ctx context.Context, id int64, state model.ProjectState) error {
	query := `
		UPDATE projects
		SET state = $2,
			ended_at = CASE WHEN $3 THEN now() ELSE NULL END
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, state, state.Terminal())
	if err != nil {
		return fmt.Errorf("ошибка смены состояния проекта: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AbandonIdle: проект простаивает, если с момента создания прошло больше idle_timeout
// и ни в журнале проекта, ни в журнале его handle нет записей моложе idle_timeout.
func (r *projectRepo) AbandonIdle(ctx context.Context) ([]int64, error) {
	query := `
		UPDATE projects p
		SET state = 'abandoned'
		WHERE p.state = 'active'
			AND p.idle_timeout_seconds IS NOT NULL
			AND p.created_at < now() - make_interval(secs => p.idle_timeout_seconds)
			AND NOT EXISTS (
				SELECT 1 FROM project_log l
				WHERE l.project_id = p.id
					AND l.t > now() - make_interval(secs => p.idle_timeout_seconds))
			AND NOT EXISTS (
				SELECT 1 FROM file_handle_log l
				WHERE l.project_id = p.id
					AND l.t > now() - make_interval(secs => p.idle_timeout_seconds))
		RETURNING p.id`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка пометки abandoned проектов: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("ошибка сканирования abandoned проектов: %w", err)
	}
	return ids, nil
}
