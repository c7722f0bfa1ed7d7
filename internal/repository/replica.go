package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/datadispatcher/internal/domain/model"
)

// ReplicaRepository — интерфейс доступа к таблице replicas.
type ReplicaRepository interface {
	// RemoveExcept удаляет реплики файла на RSE, отсутствующих в keep.
	RemoveExcept(ctx context.Context, did model.DID, keep []string) ([]string, error)
	// Upsert вставляет или обновляет реплику. available объединяется по OR
	// с уже сохранённым значением. Возвращает true, если строка изменилась.
	Upsert(ctx context.Context, did model.DID, rse string, info model.ReplicaInfo) (bool, error)
	// SetAvailable меняет флаг available только у строк, где он отличается.
	// Возвращает DID изменённых строк.
	SetAvailable(ctx context.Context, available bool, rse string, dids []model.DID) ([]model.DID, error)
	// RemoveBulk удаляет реплики файлов на RSE.
	RemoveBulk(ctx context.Context, rse string, dids []model.DID) ([]model.DID, error)
	// Purge удаляет реплики, не нужные ни одному активному проекту.
	Purge(ctx context.Context) (int, error)
	// ForFiles возвращает реплики файлов, отсортированные по убыванию preference.
	ForFiles(ctx context.Context, dids []model.DID) (map[model.DID][]model.Replica, error)
	// ForActiveHandles возвращает реплики активных handle проекта.
	ForActiveHandles(ctx context.Context, projectID int64) (map[model.DID][]model.Replica, error)
}

// replicaRepo — реализация ReplicaRepository.
type replicaRepo struct {
	db DBTX
}

// NewReplicaRepository создаёт репозиторий реплик.
func NewReplicaRepository(db DBTX) ReplicaRepository {
	return &replicaRepo{db: db}
}

func (r *replicaRepo) RemoveExcept(ctx context.Context, did model.DID, keep []string) ([]string, error) {
	if keep == nil {
		keep = []string{}
	}
	query := `
		DELETE FROM replicas
		WHERE namespace = $1 AND name = $2 AND rse <> ALL($3::text[])
		RETURNING rse`

	rows, err := r.db.Query(ctx, query, did.Namespace, did.Name, keep)
	if err != nil {
		return nil, fmt.Errorf("ошибка удаления реплик %s: %w", did, err)
	}
	removed, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("ошибка сканирования удалённых реплик: %w", err)
	}
	return removed, nil
}

// Upsert: условие WHERE ... IS DISTINCT FROM делает повторную синхронизацию
// с теми же данными холостой — строка не перезаписывается.
func (r *replicaRepo) Upsert(ctx context.Context, did model.DID, rse string, info model.ReplicaInfo) (bool, error) {
	query := `
		INSERT INTO replicas AS rp (namespace, name, rse, path, url, preference, available)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (namespace, name, rse) DO UPDATE SET
			path = EXCLUDED.path,
			url = EXCLUDED.url,
			preference = EXCLUDED.preference,
			available = rp.available OR EXCLUDED.available
		WHERE (rp.path, rp.url, rp.preference, rp.available)
			IS DISTINCT FROM (EXCLUDED.path, EXCLUDED.url, EXCLUDED.preference, rp.available OR EXCLUDED.available)
		RETURNING 1`

	var one int
	err := r.db.QueryRow(ctx, query,
		did.Namespace, did.Name, rse, info.Path, info.URL, info.Preference, info.Available,
	).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("ошибка upsert реплики %s@%s: %w", did, rse, err)
	}
	return true, nil
}

func (r *replicaRepo) SetAvailable(ctx context.Context, available bool, rse string, dids []model.DID) ([]model.DID, error) {
	if len(dids) == 0 {
		return nil, nil
	}
	namespaces, names := splitDIDs(dids)
	query := `
		UPDATE replicas
		SET available = $1
		WHERE rse = $2
			AND available <> $1
			AND (namespace, name) IN (SELECT * FROM unnest($3::text[], $4::text[]))
		RETURNING namespace, name`

	return r.collectDIDs(ctx, query, available, rse, namespaces, names)
}

func (r *replicaRepo) RemoveBulk(ctx context.Context, rse string, dids []model.DID) ([]model.DID, error) {
	if len(dids) == 0 {
		return nil, nil
	}
	namespaces, names := splitDIDs(dids)
	query := `
		DELETE FROM replicas
		WHERE rse = $1
			AND (namespace, name) IN (SELECT * FROM unnest($2::text[], $3::text[]))
		RETURNING namespace, name`

	return r.collectDIDs(ctx, query, rse, namespaces, names)
}

func (r *replicaRepo) collectDIDs(ctx context.Context, query string, args ...any) ([]model.DID, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка обновления реплик: %w", err)
	}
	defer rows.Close()

	var result []model.DID
	for rows.Next() {
		var did model.DID
		if err := rows.Scan(&did.Namespace, &did.Name); err != nil {
			return nil, fmt.Errorf("ошибка сканирования реплики: %w", err)
		}
		result = append(result, did)
	}
	return result, rows.Err()
}

// Purge удаляет реплики без handle, а также реплики, на которые ссылаются
// только handle неактивных проектов.
func (r *replicaRepo) Purge(ctx context.Context) (int, error) {
	query := `
		DELETE FROM replicas rp
		WHERE NOT EXISTS (
			SELECT 1
			FROM file_handles h
			JOIN projects p ON p.id = h.project_id
			WHERE h.namespace = rp.namespace
				AND h.name = rp.name
				AND p.state = 'active')`

	tag, err := r.db.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("ошибка очистки реплик: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

const replicaColumns = `rp.namespace, rp.name, rp.rse, rp.path, rp.url, rp.preference, rp.available, s.is_available`

func (r *replicaRepo) ForFiles(ctx context.Context, dids []model.DID) (map[model.DID][]model.Replica, error) {
	if len(dids) == 0 {
		return map[model.DID][]model.Replica{}, nil
	}
	namespaces, names := splitDIDs(dids)
	query := `
		SELECT ` + replicaColumns + `
		FROM replicas rp
		JOIN rses s ON s.name = rp.rse
		WHERE (rp.namespace, rp.name) IN (SELECT * FROM unnest($1::text[], $2::text[]))`

	return r.collectReplicas(ctx, query, namespaces, names)
}

func (r *replicaRepo) ForActiveHandles(ctx context.Context, projectID int64) (map[model.DID][]model.Replica, error) {
	query := `
		SELECT ` + replicaColumns + `
		FROM file_handles h
		JOIN replicas rp ON rp.namespace = h.namespace AND rp.name = h.name
		JOIN rses s ON s.name = rp.rse
		WHERE h.project_id = $1 AND h.state IN ('initial', 'reserved')`

	return r.collectReplicas(ctx, query, projectID)
}

func (r *replicaRepo) collectReplicas(ctx context.Context, query string, args ...any) (map[model.DID][]model.Replica, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения реплик: %w", err)
	}
	defer rows.Close()

	result := make(map[model.DID][]model.Replica)
	for rows.Next() {
		var rp model.Replica
		if err := rows.Scan(
			&rp.Namespace, &rp.Name, &rp.RSE, &rp.Path, &rp.URL,
			&rp.Preference, &rp.Available, &rp.RSEAvailable,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования реплики: %w", err)
		}
		did := rp.DID()
		result[did] = append(result[did], rp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, list := range result {
		SortReplicas(list)
	}
	return result, nil
}

// SortReplicas упорядочивает реплики: сначала пригодные к чтению,
// затем по убыванию preference, затем по имени RSE.
func SortReplicas(list []model.Replica) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.Usable() != b.Usable() {
			return a.Usable()
		}
		if a.Preference != b.Preference {
			return a.Preference > b.Preference
		}
		return a.RSE < b.RSE
	})
}
