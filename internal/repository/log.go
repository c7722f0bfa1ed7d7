package repository

import (
	"context"
	"fmt"

	"github.com/bigkaa/datadispatcher/internal/domain/model"
)

// Типы записей журналов.
const (
	LogCreated   = "created"
	LogState     = "state"
	LogReserved  = "reserved"
	LogReleased  = "released"
	LogTimeout   = "timeout"
	LogRestarted = "restarted"
	LogSynced    = "synced"
	LogRemoved   = "removed"
	LogAvailable = "available"
	LogUpdated   = "updated"
)

// LogRepository — запись и чтение журналов сущностей (append-only).
type LogRepository interface {
	// AddProject добавляет запись в журнал проекта.
	AddProject(ctx context.Context, projectID int64, typ string, data map[string]any) error
	// AddHandle добавляет запись в журнал file handle.
	AddHandle(ctx context.Context, projectID int64, did model.DID, typ string, data map[string]any) error
	// AddReplica добавляет запись в журнал реплики.
	AddReplica(ctx context.Context, did model.DID, rse, typ string, data map[string]any) error
	// AddRSE добавляет запись в журнал RSE.
	AddRSE(ctx context.Context, rse, typ string, data map[string]any) error
	// ProjectLog возвращает журнал проекта в хронологическом порядке.
	ProjectLog(ctx context.Context, projectID int64) ([]model.LogRecord, error)
	// HandleLog возвращает журнал всех handle проекта (или одного, если did != nil).
	HandleLog(ctx context.Context, projectID int64, did *model.DID) ([]model.HandleLogRecord, error)
}

// logRepo — реализация LogRepository.
type logRepo struct {
	db DBTX
}

// NewLogRepository создаёт репозиторий журналов.
func NewLogRepository(db DBTX) LogRepository {
	return &logRepo{db: db}
}

func (r *logRepo) AddProject(ctx context.Context, projectID int64, typ string, data map[string]any) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO project_log (project_id, type, data) VALUES ($1, $2, $3)`,
		projectID, typ, attrs(data))
	if err != nil {
		return fmt.Errorf("ошибка записи журнала проекта %d: %w", projectID, err)
	}
	return nil
}

func (r *logRepo) AddHandle(ctx context.Context, projectID int64, did model.DID, typ string, data map[string]any) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO file_handle_log (project_id, namespace, name, type, data) VALUES ($1, $2, $3, $4, $5)`,
		projectID, did.Namespace, did.Name, typ, attrs(data))
	if err != nil {
		return fmt.Errorf("ошибка записи журнала handle %s: %w", did, err)
	}
	return nil
}

func (r *logRepo) AddReplica(ctx context.Context, did model.DID, rse, typ string, data map[string]any) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO replica_log (namespace, name, rse, type, data) VALUES ($1, $2, $3, $4, $5)`,
		did.Namespace, did.Name, rse, typ, attrs(data))
	if err != nil {
		return fmt.Errorf("ошибка записи журнала реплики %s@%s: %w", did, rse, err)
	}
	return nil
}

func (r *logRepo) AddRSE(ctx context.Context, rse, typ string, data map[string]any) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO rse_log (name, type, data) VALUES ($1, $2, $3)`,
		rse, typ, attrs(data))
	if err != nil {
		return fmt.Errorf("ошибка записи журнала RSE %s: %w", rse, err)
	}
	return nil
}

func (r *logRepo) ProjectLog(ctx context.Context, projectID int64) ([]model.LogRecord, error) {
	rows, err := r.db.Query(ctx,
		`SELECT type, t, data FROM project_log WHERE project_id = $1 ORDER BY t`, projectID)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения журнала проекта: %w", err)
	}
	defer rows.Close()

	var result []model.LogRecord
	for rows.Next() {
		var rec model.LogRecord
		if err := rows.Scan(&rec.Type, &rec.T, &rec.Data); err != nil {
			return nil, fmt.Errorf("ошибка сканирования журнала проекта: %w", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (r *logRepo) HandleLog(ctx context.Context, projectID int64, did *model.DID) ([]model.HandleLogRecord, error) {
	query := `
		SELECT namespace, name, type, t, data
		FROM file_handle_log
		WHERE project_id = $1`
	args := []any{projectID}
	if did != nil {
		query += ` AND namespace = $2 AND name = $3`
		args = append(args, did.Namespace, did.Name)
	}
	query += ` ORDER BY t`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения журнала handle: %w", err)
	}
	defer rows.Close()

	var result []model.HandleLogRecord
	for rows.Next() {
		var rec model.HandleLogRecord
		if err := rows.Scan(&rec.Namespace, &rec.Name, &rec.Type, &rec.T, &rec.Data); err != nil {
			return nil, fmt.Errorf("ошибка сканирования журнала handle: %w", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}
