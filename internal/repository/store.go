package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bigkaa/datadispatcher/internal/domain/model"
)

// Store — транзакционный фасад над репозиториями.
// Все изменяющие операции выполняются в одной транзакции (всё или ничего)
// и сопровождаются записью в журнал изменённой сущности.
type Store struct {
	db DBTX
	tx *TxRunner
}

// NewStore создаёт Store поверх пула подключений.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{db: pool, tx: NewTxRunner(pool)}
}

// --- Проекты ---

// CreateProject создаёт проект и все его handle одной транзакцией.
func (s *Store) CreateProject(ctx context.Context, np model.NewProject) (*model.Project, error) {
	p := &model.Project{
		Owner:         np.Owner,
		State:         model.ProjectActive,
		Attributes:    np.Attributes,
		Query:         np.Query,
		WorkerTimeout: np.WorkerTimeout,
		IdleTimeout:   np.IdleTimeout,
		Users:         np.Users,
	}

	err := s.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		if err := NewProjectRepository(tx).Create(ctx, p); err != nil {
			return err
		}
		n, err := NewHandleRepository(tx).CreateBulk(ctx, p.ID, np.Files)
		if err != nil {
			return err
		}
		return NewLogRepository(tx).AddProject(ctx, p.ID, LogCreated, map[string]any{
			"owner": p.Owner,
			"files": n,
		})
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GetProject возвращает проект или ErrNotFound.
func (s *Store) GetProject(ctx context.Context, id int64) (*model.Project, error) {
	return NewProjectRepository(s.db).GetByID(ctx, id)
}

// ListProjects возвращает проекты, опционально по состоянию.
func (s *Store) ListProjects(ctx context.Context, state *model.ProjectState, limit, offset int) ([]*model.Project, error) {
	return NewProjectRepository(s.db).List(ctx, state, limit, offset)
}

// ActiveProjectIDs возвращает ID активных проектов.
func (s *Store) ActiveProjectIDs(ctx context.Context) ([]int64, error) {
	return NewProjectRepository(s.db).ActiveIDs(ctx)
}

// SetProjectState переводит проект в новое состояние, если текущее состояние
// входит в allowedFrom. Возвращает проект после изменения.
func (s *Store) SetProjectState(ctx context.Context, id int64, state model.ProjectState, allowedFrom []model.ProjectState, reason string) (*model.Project, error) {
	var result *model.Project
	err := s.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		projects := NewProjectRepository(tx)
		p, err := projects.LockByID(ctx, id)
		if err != nil {
			return err
		}
		allowed := false
		for _, st := range allowedFrom {
			if p.State == st {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Errorf("%w: переход %s → %s недопустим", ErrConflict, p.State, state)
		}
		if err := projects.SetState(ctx, id, state); err != nil {
			return err
		}
		if err := NewLogRepository(tx).AddProject(ctx, id, LogState, map[string]any{
			"state":  state,
			"old":    p.State,
			"reason": reason,
		}); err != nil {
			return err
		}
		result, err = projects.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// MarkAbandoned переводит простаивающие проекты в abandoned.
func (s *Store) MarkAbandoned(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := s.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		var err error
		ids, err = NewProjectRepository(tx).AbandonIdle(ctx)
		if err != nil {
			return err
		}
		logs := NewLogRepository(tx)
		for _, id := range ids {
			if err := logs.AddProject(ctx, id, LogState, map[string]any{
				"state":  model.ProjectAbandoned,
				"reason": "idle timeout",
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// ProjectLog возвращает журнал проекта.
func (s *Store) ProjectLog(ctx context.Context, projectID int64) ([]model.LogRecord, error) {
	return NewLogRepository(s.db).ProjectLog(ctx, projectID)
}

// HandleLog возвращает журнал handle проекта.
func (s *Store) HandleLog(ctx context.Context, projectID int64, did *model.DID) ([]model.HandleLogRecord, error) {
	return NewLogRepository(s.db).HandleLog(ctx, projectID, did)
}

// --- File handles ---

// ReserveHandle резервирует за воркером один handle проекта.
//
// Выборка идёт с FOR UPDATE SKIP LOCKED: конкурирующие транзакции не ждут
// друг друга и никогда не получают один и тот же handle. Если подходящего
// handle нет, результат — ReserveRetry для активного проекта и ReserveEnded
// для неактивного или отсутствующего.
func (s *Store) ReserveHandle(ctx context.Context, projectID int64, workerID string) (*model.FileHandle, model.ReserveStatus, error) {
	var handle *model.FileHandle
	status := model.ReserveRetry

	err := s.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		project, err := NewProjectRepository(tx).GetByID(ctx, projectID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				status = model.ReserveEnded
				return nil
			}
			return err
		}
		if project.State != model.ProjectActive {
			status = model.ReserveEnded
			return nil
		}

		handles := NewHandleRepository(tx)
		did, err := handles.SelectReservable(ctx, projectID)
		if err != nil {
			return err
		}
		if did == nil {
			return nil
		}

		handle, err = handles.MarkReserved(ctx, projectID, *did, workerID)
		if err != nil {
			return err
		}
		status = model.ReserveOK
		return NewLogRepository(tx).AddHandle(ctx, projectID, *did, LogReserved, map[string]any{
			"worker":   workerID,
			"attempts": handle.Attempts,
		})
	})
	if err != nil {
		return nil, "", err
	}
	return handle, status, nil
}

// ReleaseHandle завершает резервирование handle.
//
// failed=false → done; failed=true, retry=true → initial (attempts сохраняется);
// failed=true, retry=false → failed. Если handle не в reserved или не существует,
// возвращает (nil, nil). Когда все handle проекта становятся конечными, проект
// в той же транзакции переходит в done (нет failed) или failed.
func (s *Store) ReleaseHandle(ctx context.Context, projectID int64, did model.DID, failed, retry bool) (*model.FileHandle, error) {
	newState := model.HandleDone
	switch {
	case failed && retry:
		newState = model.HandleInitial
	case failed:
		newState = model.HandleFailed
	}

	var handle *model.FileHandle
	err := s.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		// Блокировка строки проекта сериализует финальную агрегацию состояния:
		// иначе два параллельных release последних handle не увидят изменения друг друга.
		project, err := NewProjectRepository(tx).LockByID(ctx, projectID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			return err
		}

		h, err := NewHandleRepository(tx).Release(ctx, projectID, did, newState)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			return err
		}
		handle = h

		if err := NewLogRepository(tx).AddHandle(ctx, projectID, did, LogReleased, map[string]any{
			"failed": failed,
			"retry":  retry,
			"state":  newState,
		}); err != nil {
			return err
		}

		return s.finishIfComplete(ctx, tx, project)
	})
	if err != nil {
		return nil, err
	}
	return handle, nil
}

// finishIfComplete переводит проект в done/failed, если все его handle конечные.
func (s *Store) finishIfComplete(ctx context.Context, tx pgx.Tx, project *model.Project) error {
	if project.State.Terminal() {
		return nil
	}
	active, failedCount, err := NewHandleRepository(tx).Counts(ctx, project.ID)
	if err != nil {
		return err
	}
	if active > 0 {
		return nil
	}

	final := model.ProjectDone
	if failedCount > 0 {
		final = model.ProjectFailed
	}
	if err := NewProjectRepository(tx).SetState(ctx, project.ID, final); err != nil {
		return err
	}
	return NewLogRepository(tx).AddProject(ctx, project.ID, LogState, map[string]any{
		"state":  final,
		"old":    project.State,
		"failed": failedCount,
	})
}

// ReleaseTimedOutHandles возвращает в initial handle, зарезервированные раньше before.
func (s *Store) ReleaseTimedOutHandles(ctx context.Context, projectID int64, before time.Time) (int, error) {
	var count int
	err := s.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		released, err := NewHandleRepository(tx).ReleaseReservedBefore(ctx, projectID, before)
		if err != nil {
			return err
		}
		logs := NewLogRepository(tx)
		for _, h := range released {
			data := map[string]any{"reserved_since": h.ReservedSince}
			if h.WorkerID != nil {
				data["worker"] = *h.WorkerID
			}
			if err := logs.AddHandle(ctx, projectID, h.DID(), LogTimeout, data); err != nil {
				return err
			}
		}
		count = len(released)
		return nil
	})
	return count, err
}

// RestartHandles возвращает в initial handle с указанными состояниями или DID.
// Конечный проект, в котором после этого есть неконечные handle, снова становится active.
func (s *Store) RestartHandles(ctx context.Context, projectID int64, states []model.HandleState, dids []model.DID) (int, error) {
	var count int
	err := s.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		projects := NewProjectRepository(tx)
		project, err := projects.LockByID(ctx, projectID)
		if err != nil {
			return err
		}

		restarted, err := NewHandleRepository(tx).Reset(ctx, projectID, states, dids)
		if err != nil {
			return err
		}
		count = len(restarted)

		logs := NewLogRepository(tx)
		for _, did := range restarted {
			if err := logs.AddHandle(ctx, projectID, did, LogRestarted, nil); err != nil {
				return err
			}
		}

		if count == 0 || !project.State.Terminal() {
			return nil
		}
		active, _, err := NewHandleRepository(tx).Counts(ctx, projectID)
		if err != nil {
			return err
		}
		if active == 0 {
			return nil
		}
		if err := projects.SetState(ctx, projectID, model.ProjectActive); err != nil {
			return err
		}
		return logs.AddProject(ctx, projectID, LogState, map[string]any{
			"state":     model.ProjectActive,
			"old":       project.State,
			"restarted": count,
		})
	})
	return count, err
}

// GetHandle возвращает handle с репликами.
func (s *Store) GetHandle(ctx context.Context, projectID int64, did model.DID) (*model.FileHandle, error) {
	h, err := NewHandleRepository(s.db).Get(ctx, projectID, did)
	if err != nil {
		return nil, err
	}
	replicas, err := NewReplicaRepository(s.db).ForFiles(ctx, []model.DID{did})
	if err != nil {
		return nil, err
	}
	h.Replicas = replicas[did]
	return h, nil
}

// ListHandles возвращает handle проекта с репликами.
func (s *Store) ListHandles(ctx context.Context, projectID int64, state *model.HandleState) ([]*model.FileHandle, error) {
	handles, err := NewHandleRepository(s.db).List(ctx, projectID, state)
	if err != nil {
		return nil, err
	}
	return s.attachReplicas(ctx, handles)
}

// ActiveHandles возвращает handle проекта в initial и reserved с репликами.
func (s *Store) ActiveHandles(ctx context.Context, projectID int64) ([]*model.FileHandle, error) {
	handles, err := NewHandleRepository(s.db).ListActive(ctx, projectID)
	if err != nil {
		return nil, err
	}
	replicas, err := NewReplicaRepository(s.db).ForActiveHandles(ctx, projectID)
	if err != nil {
		return nil, err
	}
	for _, h := range handles {
		h.Replicas = replicas[h.DID()]
	}
	return handles, nil
}

// HandleCounts возвращает количество нетерминальных и failed handle проекта.
func (s *Store) HandleCounts(ctx context.Context, projectID int64) (active, failed int, err error) {
	return NewHandleRepository(s.db).Counts(ctx, projectID)
}

func (s *Store) attachReplicas(ctx context.Context, handles []*model.FileHandle) ([]*model.FileHandle, error) {
	dids := make([]model.DID, len(handles))
	for i, h := range handles {
		dids[i] = h.DID()
	}
	replicas, err := NewReplicaRepository(s.db).ForFiles(ctx, dids)
	if err != nil {
		return nil, err
	}
	for _, h := range handles {
		h.Replicas = replicas[h.DID()]
	}
	return handles, nil
}

// --- Реплики ---

// SyncReplicas приводит реплики файлов к новому набору одной транзакцией.
//
// Для каждого файла удаляются реплики на RSE, которых нет в новом наборе,
// остальные вставляются или обновляются. Флаг available объединяется по OR:
// реплика, уже известная как доступная, не становится недоступной из-за синхронизации.
func (s *Store) SyncReplicas(ctx context.Context, byFile map[model.DID]map[string]model.ReplicaInfo) (model.SyncStats, error) {
	var stats model.SyncStats
	if len(byFile) == 0 {
		return stats, nil
	}

	err := s.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		stats = model.SyncStats{}
		replicas := NewReplicaRepository(tx)
		logs := NewLogRepository(tx)

		for did, byRSE := range byFile {
			keep := make([]string, 0, len(byRSE))
			for rse := range byRSE {
				keep = append(keep, rse)
			}

			removed, err := replicas.RemoveExcept(ctx, did, keep)
			if err != nil {
				return err
			}
			for _, rse := range removed {
				if err := logs.AddReplica(ctx, did, rse, LogRemoved, map[string]any{"reason": "sync"}); err != nil {
					return err
				}
			}
			stats.Removed += len(removed)

			for rse, info := range byRSE {
				changed, err := replicas.Upsert(ctx, did, rse, info)
				if err != nil {
					return err
				}
				if !changed {
					continue
				}
				stats.Upserted++
				if err := logs.AddReplica(ctx, did, rse, LogSynced, map[string]any{
					"path":      info.Path,
					"url":       info.URL,
					"available": info.Available,
				}); err != nil {
					return err
				}
			}
		}
		return nil
	})
	return stats, err
}

// UpdateAvailabilityBulk меняет флаг available реплик на RSE только там,
// где значение действительно меняется. Возвращает количество изменённых строк.
func (s *Store) UpdateAvailabilityBulk(ctx context.Context, available bool, rse string, dids []model.DID) (int, error) {
	if len(dids) == 0 {
		return 0, nil
	}
	var count int
	err := s.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		changed, err := NewReplicaRepository(tx).SetAvailable(ctx, available, rse, dids)
		if err != nil {
			return err
		}
		logs := NewLogRepository(tx)
		for _, did := range changed {
			if err := logs.AddReplica(ctx, did, rse, LogAvailable, map[string]any{"available": available}); err != nil {
				return err
			}
		}
		count = len(changed)
		return nil
	})
	return count, err
}

// RemoveBulk удаляет реплики файлов на RSE (RSE сообщил, что файла нет).
func (s *Store) RemoveBulk(ctx context.Context, rse string, dids []model.DID) (int, error) {
	if len(dids) == 0 {
		return 0, nil
	}
	var count int
	err := s.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		removed, err := NewReplicaRepository(tx).RemoveBulk(ctx, rse, dids)
		if err != nil {
			return err
		}
		logs := NewLogRepository(tx)
		for _, did := range removed {
			if err := logs.AddReplica(ctx, did, rse, LogRemoved, map[string]any{"reason": "not found"}); err != nil {
				return err
			}
		}
		count = len(removed)
		return nil
	})
	return count, err
}

// PurgeReplicas удаляет реплики, не нужные ни одному активному проекту.
func (s *Store) PurgeReplicas(ctx context.Context) (int, error) {
	return NewReplicaRepository(s.db).Purge(ctx)
}

// HandleReplicas возвращает реплики файлов.
func (s *Store) HandleReplicas(ctx context.Context, dids []model.DID) (map[model.DID][]model.Replica, error) {
	return NewReplicaRepository(s.db).ForFiles(ctx, dids)
}

// --- RSE ---

// GetRSE возвращает RSE по имени.
func (s *Store) GetRSE(ctx context.Context, name string) (*model.RSE, error) {
	return NewRSERepository(s.db).Get(ctx, name)
}

// ListRSEs возвращает все RSE.
func (s *Store) ListRSEs(ctx context.Context) ([]*model.RSE, error) {
	return NewRSERepository(s.db).List(ctx)
}

// UpsertRSE создаёт или обновляет RSE, записывая изменение в журнал RSE.
func (s *Store) UpsertRSE(ctx context.Context, rse *model.RSE) (bool, error) {
	var changed bool
	err := s.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		var err error
		changed, err = NewRSERepository(tx).Upsert(ctx, rse)
		if err != nil || !changed {
			return err
		}
		return NewLogRepository(tx).AddRSE(ctx, rse.Name, LogUpdated, map[string]any{
			"is_enabled":   rse.IsEnabled,
			"is_available": rse.IsAvailable,
			"is_tape":      rse.IsTape,
			"type":         rse.Type,
		})
	})
	return changed, err
}

// SetRSEAvailable меняет доступность RSE.
func (s *Store) SetRSEAvailable(ctx context.Context, name string, available bool) error {
	return s.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		if err := NewRSERepository(tx).SetAvailable(ctx, name, available); err != nil {
			return err
		}
		return NewLogRepository(tx).AddRSE(ctx, name, LogAvailable, map[string]any{"available": available})
	})
}

// ProximityForSite возвращает близость сайта ко всем RSE.
func (s *Store) ProximityForSite(ctx context.Context, cpuSite string) (map[string]int, error) {
	return NewRSERepository(s.db).ProximityForSite(ctx, cpuSite)
}

// UpsertProximity создаёт или обновляет строку карты близости.
func (s *Store) UpsertProximity(ctx context.Context, p model.Proximity) error {
	return NewRSERepository(s.db).UpsertProximity(ctx, p)
}
