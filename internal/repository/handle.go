package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/datadispatcher/internal/domain/model"
)

// HandleRepository — интерфейс доступа к таблице file_handles.
type HandleRepository interface {
	// CreateBulk создаёт handle проекта в состоянии initial (COPY).
	CreateBulk(ctx context.Context, projectID int64, files []model.NewFile) (int64, error)
	// Get возвращает handle по ключу.
	Get(ctx context.Context, projectID int64, did model.DID) (*model.FileHandle, error)
	// List возвращает все handle проекта, опционально по состоянию.
	List(ctx context.Context, projectID int64, state *model.HandleState) ([]*model.FileHandle, error)
	// ListActive возвращает handle проекта в состояниях initial и reserved.
	ListActive(ctx context.Context, projectID int64) ([]*model.FileHandle, error)
	// SelectReservable выбирает один handle, пригодный для резервирования,
	// пропуская строки, заблокированные другими транзакциями (SKIP LOCKED).
	SelectReservable(ctx context.Context, projectID int64) (*model.DID, error)
	// MarkReserved переводит выбранный handle в reserved.
	MarkReserved(ctx context.Context, projectID int64, did model.DID, workerID string) (*model.FileHandle, error)
	// Release переводит handle из reserved в newState. Возвращает ErrNotFound,
	// если handle не существует или не в reserved.
	Release(ctx context.Context, projectID int64, did model.DID, newState model.HandleState) (*model.FileHandle, error)
	// ReleaseReservedBefore возвращает в initial handle, зарезервированные раньше before.
	ReleaseReservedBefore(ctx context.Context, projectID int64, before time.Time) ([]*model.FileHandle, error)
	// Reset переводит в initial handle с указанными состояниями или DID.
	Reset(ctx context.Context, projectID int64, states []model.HandleState, dids []model.DID) ([]model.DID, error)
	// Counts возвращает количество нетерминальных и failed handle проекта.
	Counts(ctx context.Context, projectID int64) (active, failed int, err error)
}

// handleRepo — реализация HandleRepository.
type handleRepo struct {
	db DBTX
}

// NewHandleRepository создаёт репозиторий file handle.
func NewHandleRepository(db DBTX) HandleRepository {
	return &handleRepo{db: db}
}

const handleColumns = `project_id, namespace, name, state, worker_id, attempts, reserved_since, attributes`

func scanHandle(row pgx.Row) (*model.FileHandle, error) {
	h := &model.FileHandle{}
	err := row.Scan(
		&h.ProjectID, &h.Namespace, &h.Name, &h.State, &h.WorkerID,
		&h.Attempts, &h.ReservedSince, &h.Attributes,
	)
	if err != nil {
		return nil, err
	}
	return h, nil
}

func collectHandles(rows pgx.Rows) ([]*model.FileHandle, error) {
	defer rows.Close()
	var result []*model.FileHandle
	for rows.Next() {
		h, err := scanHandle(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования handle: %w", err)
		}
		result = append(result, h)
	}
	return result, rows.Err()
}

func (r *handleRepo) CreateBulk(ctx context.Context, projectID int64, files []model.NewFile) (int64, error) {
	if len(files) == 0 {
		return 0, nil
	}

	n, err := r.db.CopyFrom(ctx,
		pgx.Identifier{"file_handles"},
		[]string{"project_id", "namespace", "name", "attributes"},
		pgx.CopyFromSlice(len(files), func(i int) ([]any, error) {
			f := files[i]
			return []any{projectID, f.DID.Namespace, f.DID.Name, attrs(f.Attributes)}, nil
		}),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: файл указан в проекте дважды", ErrConflict)
		}
		return 0, fmt.Errorf("ошибка создания handle: %w", err)
	}
	return n, nil
}

func (r *handleRepo) Get(ctx context.Context, projectID int64, did model.DID) (*model.FileHandle, error) {
	query := `SELECT ` + handleColumns + `
		FROM file_handles
		WHERE project_id = $1 AND namespace = $2 AND name = $3`

	h, err := scanHandle(r.db.QueryRow(ctx, query, projectID, did.Namespace, did.Name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения handle: %w", err)
	}
	return h, nil
}

func (r *handleRepo) List(ctx context.Context, projectID int64, state *model.HandleState) ([]*model.FileHandle, error) {
	query := `SELECT ` + handleColumns + ` FROM file_handles WHERE project_id = $1`
	args := []any{projectID}
	if state != nil {
		query += ` AND state = $2`
		args = append(args, *state)
	}
	query += ` ORDER BY namespace, name`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка handle: %w", err)
	}
	return collectHandles(rows)
}

func (r *handleRepo) ListActive(ctx context.Context, projectID int64) ([]*model.FileHandle, error) {
	query := `SELECT ` + handleColumns + `
		FROM file_handles
		WHERE project_id = $1 AND state IN ('initial', 'reserved')
		ORDER BY namespace, name`

	rows, err := r.db.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения активных handle: %w", err)
	}
	return collectHandles(rows)
}

// SelectReservable: handle в initial, у которого есть доступная реплика на
// включённом и доступном RSE. Меньше попыток — раньше, равные — в случайном порядке.
func (r *handleRepo) SelectReservable(ctx context.Context, projectID int64) (*model.DID, error) {
	query := `
		SELECT h.namespace, h.name
		FROM file_handles h
		WHERE h.project_id = $1
			AND h.state = 'initial'
			AND EXISTS (
				SELECT 1
				FROM replicas rp
				JOIN rses s ON s.name = rp.rse
				WHERE rp.namespace = h.namespace
					AND rp.name = h.name
					AND rp.available
					AND s.is_enabled
					AND s.is_available)
		ORDER BY h.attempts, random()
		LIMIT 1
		FOR UPDATE OF h SKIP LOCKED`

	var did model.DID
	err := r.db.QueryRow(ctx, query, projectID).Scan(&did.Namespace, &did.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка выбора handle для резервирования: %w", err)
	}
	return &did, nil
}

func (r *handleRepo) MarkReserved(ctx context.Context, projectID int64, did model.DID, workerID string) (*model.FileHandle, error) {
	query := `
		UPDATE file_handles
		SET state = 'reserved', worker_id = $4, reserved_since = now(), attempts = attempts + 1
		WHERE project_id = $1 AND namespace = $2 AND name = $3
		RETURNING ` + handleColumns

	h, err := scanHandle(r.db.QueryRow(ctx, query, projectID, did.Namespace, did.Name, workerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка резервирования handle: %w", err)
	}
	return h, nil
}

func (r *handleRepo) Release(ctx context.Context, projectID int64, did model.DID, newState model.HandleState) (*model.FileHandle, error) {
	query := `
		UPDATE file_handles
		SET state = $4, worker_id = NULL, reserved_since = NULL
		WHERE project_id = $1 AND namespace = $2 AND name = $3 AND state = 'reserved'
		RETURNING ` + handleColumns

	h, err := scanHandle(r.db.QueryRow(ctx, query, projectID, did.Namespace, did.Name, newState))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка освобождения handle: %w", err)
	}
	return h, nil
}

// ReleaseReservedBefore возвращает handle в состоянии до сброса (с worker_id),
// чтобы вызывающий мог записать в журнал, у какого воркера истёк таймаут.
func (r *handleRepo) ReleaseReservedBefore(ctx context.Context, projectID int64, before time.Time) ([]*model.FileHandle, error) {
	query := `
		UPDATE file_handles h
		SET state = 'initial', worker_id = NULL, reserved_since = NULL
		FROM (
			SELECT namespace, name, worker_id, reserved_since
			FROM file_handles
			WHERE project_id = $1 AND state = 'reserved' AND reserved_since < $2
			FOR UPDATE SKIP LOCKED
		) old
		WHERE h.project_id = $1 AND h.namespace = old.namespace AND h.name = old.name
		RETURNING h.project_id, h.namespace, h.name, 'reserved', old.worker_id,
			h.attempts, old.reserved_since, h.attributes`

	rows, err := r.db.Query(ctx, query, projectID, before)
	if err != nil {
		return nil, fmt.Errorf("ошибка освобождения зависших handle: %w", err)
	}
	return collectHandles(rows)
}

func (r *handleRepo) Reset(ctx context.Context, projectID int64, states []model.HandleState, dids []model.DID) ([]model.DID, error) {
	stateNames := make([]string, len(states))
	for i, s := range states {
		stateNames[i] = string(s)
	}
	namespaces, names := splitDIDs(dids)

	query := `
		UPDATE file_handles
		SET state = 'initial', worker_id = NULL, reserved_since = NULL
		WHERE project_id = $1
			AND (state = ANY($2::text[])
				OR (namespace, name) IN (SELECT * FROM unnest($3::text[], $4::text[])))
		RETURNING namespace, name`

	rows, err := r.db.Query(ctx, query, projectID, stateNames, namespaces, names)
	if err != nil {
		return nil, fmt.Errorf("ошибка перезапуска handle: %w", err)
	}
	defer rows.Close()

	var result []model.DID
	for rows.Next() {
		var did model.DID
		if err := rows.Scan(&did.Namespace, &did.Name); err != nil {
			return nil, fmt.Errorf("ошибка сканирования перезапущенного handle: %w", err)
		}
		result = append(result, did)
	}
	return result, rows.Err()
}

func (r *handleRepo) Counts(ctx context.Context, projectID int64) (active, failed int, err error) {
	query := `
		SELECT
			count(*) FILTER (WHERE state NOT IN ('done', 'failed')),
			count(*) FILTER (WHERE state = 'failed')
		FROM file_handles
		WHERE project_id = $1`

	if err := r.db.QueryRow(ctx, query, projectID).Scan(&active, &failed); err != nil {
		return 0, 0, fmt.Errorf("ошибка подсчёта handle: %w", err)
	}
	return active, failed, nil
}
