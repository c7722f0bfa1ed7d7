// dispatcher.go — операции проектов и резервирования файлов для воркеров.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/datadispatcher/internal/domain/model"
	"github.com/bigkaa/datadispatcher/internal/repository"
)

var (
	reservationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dd_reservations_total",
		Help: "Количество запросов резервирования по результату",
	}, []string{"status"})

	releasesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dd_releases_total",
		Help: "Количество завершённых резервирований по результату",
	}, []string{"result"})
)

// DispatcherStore — операции Store, нужные Dispatcher.
type DispatcherStore interface {
	CreateProject(ctx context.Context, np model.NewProject) (*model.Project, error)
	GetProject(ctx context.Context, id int64) (*model.Project, error)
	ListProjects(ctx context.Context, state *model.ProjectState, limit, offset int) ([]*model.Project, error)
	SetProjectState(ctx context.Context, id int64, state model.ProjectState, allowedFrom []model.ProjectState, reason string) (*model.Project, error)
	ProjectLog(ctx context.Context, projectID int64) ([]model.LogRecord, error)
	HandleLog(ctx context.Context, projectID int64, did *model.DID) ([]model.HandleLogRecord, error)
	ReserveHandle(ctx context.Context, projectID int64, workerID string) (*model.FileHandle, model.ReserveStatus, error)
	ReleaseHandle(ctx context.Context, projectID int64, did model.DID, failed, retry bool) (*model.FileHandle, error)
	RestartHandles(ctx context.Context, projectID int64, states []model.HandleState, dids []model.DID) (int, error)
	GetHandle(ctx context.Context, projectID int64, did model.DID) (*model.FileHandle, error)
	ListHandles(ctx context.Context, projectID int64, state *model.HandleState) ([]*model.FileHandle, error)
	HandleReplicas(ctx context.Context, dids []model.DID) (map[model.DID][]model.Replica, error)
	ListRSEs(ctx context.Context) ([]*model.RSE, error)
	GetRSE(ctx context.Context, name string) (*model.RSE, error)
	SetRSEAvailable(ctx context.Context, name string, available bool) error
}

// ProjectKicker запрашивает внеочередную обработку проекта монитором.
// Реализуется *Supervisor.
type ProjectKicker interface {
	Kick(projectID int64)
}

// Reservation — результат запроса резервирования.
type Reservation struct {
	Status   model.ReserveStatus `json:"status"`
	WorkerID string              `json:"worker_id,omitempty"`
	Handle   *model.FileHandle   `json:"handle,omitempty"`
}

// Dispatcher — операции проектов и резервирования.
type Dispatcher struct {
	store     DispatcherStore
	proximity *ProximityCache
	kicker    ProjectKicker
	logger    *slog.Logger
}

// NewDispatcher создаёт Dispatcher. proximity может быть nil — тогда реплики
// не упорядочиваются по близости. kicker может быть nil.
func NewDispatcher(store DispatcherStore, proximity *ProximityCache, kicker ProjectKicker, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store:     store,
		proximity: proximity,
		kicker:    kicker,
		logger:    logger.With(slog.String("component", "dispatcher")),
	}
}

// --- Проекты ---

// CreateProject проверяет параметры и создаёт проект с handle для всех файлов.
func (d *Dispatcher) CreateProject(ctx context.Context, np model.NewProject) (*model.Project, error) {
	if err := validateNewProject(np); err != nil {
		return nil, err
	}

	p, err := d.store.CreateProject(ctx, np)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%w: %v", ErrConflict, err)
		}
		return nil, fmt.Errorf("создание проекта: %w", err)
	}

	d.logger.Info("Проект создан",
		slog.Int64("project_id", p.ID),
		slog.String("owner", p.Owner),
		slog.Int("files", len(np.Files)),
	)
	return p, nil
}

func validateNewProject(np model.NewProject) error {
	if np.Owner == "" {
		return fmt.Errorf("%w: owner обязателен", ErrValidation)
	}
	if len(np.Files) == 0 {
		return fmt.Errorf("%w: проект должен содержать хотя бы один файл", ErrValidation)
	}
	if np.WorkerTimeout != nil && *np.WorkerTimeout <= 0 {
		return fmt.Errorf("%w: worker_timeout должен быть положительным", ErrValidation)
	}
	if np.IdleTimeout != nil && *np.IdleTimeout <= 0 {
		return fmt.Errorf("%w: idle_timeout должен быть положительным", ErrValidation)
	}

	seen := make(map[model.DID]struct{}, len(np.Files))
	for _, f := range np.Files {
		if f.DID.Namespace == "" || f.DID.Name == "" {
			return fmt.Errorf("%w: у файла должны быть namespace и name", ErrValidation)
		}
		if _, ok := seen[f.DID]; ok {
			return fmt.Errorf("%w: файл %s указан дважды", ErrValidation, f.DID)
		}
		seen[f.DID] = struct{}{}
	}
	return nil
}

// GetProject возвращает проект по ID.
func (d *Dispatcher) GetProject(ctx context.Context, id int64) (*model.Project, error) {
	p, err := d.store.GetProject(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение проекта: %w", err)
	}
	return p, nil
}

// ListProjects возвращает проекты, опционально в заданном состоянии.
func (d *Dispatcher) ListProjects(ctx context.Context, state *model.ProjectState, limit, offset int) ([]*model.Project, error) {
	if state != nil && !state.Valid() {
		return nil, fmt.Errorf("%w: неизвестное состояние проекта %q", ErrValidation, *state)
	}
	projects, err := d.store.ListProjects(ctx, state, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("получение списка проектов: %w", err)
	}
	return projects, nil
}

// Hold приостанавливает выдачу файлов активного проекта.
func (d *Dispatcher) Hold(ctx context.Context, id int64) (*model.Project, error) {
	return d.setState(ctx, id, model.ProjectHeld, []model.ProjectState{model.ProjectActive}, "hold")
}

// Activate возобновляет приостановленный или abandoned проект. Монитор
// проекта запускается сразу, не дожидаясь очередного прохода supervisor'а.
func (d *Dispatcher) Activate(ctx context.Context, id int64) (*model.Project, error) {
	p, err := d.setState(ctx, id, model.ProjectActive,
		[]model.ProjectState{model.ProjectHeld, model.ProjectAbandoned}, "activate")
	if err != nil {
		return nil, err
	}
	d.kick(id)
	return p, nil
}

// Cancel отменяет незавершённый проект.
func (d *Dispatcher) Cancel(ctx context.Context, id int64) (*model.Project, error) {
	return d.setState(ctx, id, model.ProjectCancelled,
		[]model.ProjectState{model.ProjectActive, model.ProjectHeld, model.ProjectAbandoned}, "cancel")
}

func (d *Dispatcher) setState(ctx context.Context, id int64, state model.ProjectState, from []model.ProjectState, reason string) (*model.Project, error) {
	p, err := d.store.SetProjectState(ctx, id, state, from, reason)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrNotFound
		case errors.Is(err, repository.ErrConflict):
			return nil, fmt.Errorf("%w: %v", ErrConflict, err)
		}
		return nil, fmt.Errorf("изменение состояния проекта: %w", err)
	}

	d.logger.Info("Состояние проекта изменено",
		slog.Int64("project_id", id),
		slog.String("state", string(state)),
	)
	return p, nil
}

// ProjectLog возвращает журнал проекта.
func (d *Dispatcher) ProjectLog(ctx context.Context, id int64) ([]model.LogRecord, error) {
	if _, err := d.GetProject(ctx, id); err != nil {
		return nil, err
	}
	records, err := d.store.ProjectLog(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("получение журнала проекта: %w", err)
	}
	return records, nil
}

// --- File handles ---

// Handles возвращает handle проекта с репликами, опционально в заданном состоянии.
func (d *Dispatcher) Handles(ctx context.Context, projectID int64, state *model.HandleState) ([]*model.FileHandle, error) {
	if state != nil && !state.Valid() {
		return nil, fmt.Errorf("%w: неизвестное состояние handle %q", ErrValidation, *state)
	}
	if _, err := d.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	handles, err := d.store.ListHandles(ctx, projectID, state)
	if err != nil {
		return nil, fmt.Errorf("получение handle проекта: %w", err)
	}
	return handles, nil
}

// Handle возвращает один handle проекта.
func (d *Dispatcher) Handle(ctx context.Context, projectID int64, did model.DID) (*model.FileHandle, error) {
	h, err := d.store.GetHandle(ctx, projectID, did)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение handle: %w", err)
	}
	return h, nil
}

// HandleLog возвращает журнал handle проекта; did == nil — всех handle.
func (d *Dispatcher) HandleLog(ctx context.Context, projectID int64, did *model.DID) ([]model.HandleLogRecord, error) {
	if _, err := d.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	records, err := d.store.HandleLog(ctx, projectID, did)
	if err != nil {
		return nil, fmt.Errorf("получение журнала handle: %w", err)
	}
	return records, nil
}

// Reserve резервирует за воркером один доступный файл проекта.
// Пустой workerID заменяется сгенерированным. При заданном cpuSite реплики
// файла упорядочиваются по близости к сайту.
func (d *Dispatcher) Reserve(ctx context.Context, projectID int64, workerID, cpuSite string) (*Reservation, error) {
	if workerID == "" {
		workerID = uuid.NewString()
	}

	h, status, err := d.store.ReserveHandle(ctx, projectID, workerID)
	if err != nil {
		reservationsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("резервирование: %w", err)
	}
	reservationsTotal.WithLabelValues(string(status)).Inc()

	res := &Reservation{Status: status, WorkerID: workerID}
	if status != model.ReserveOK {
		return res, nil
	}

	// Резервирование уже зафиксировано: без реплик воркер всё равно получает
	// handle и может вернуть его через release с retry
	replicas, err := d.store.HandleReplicas(ctx, []model.DID{h.DID()})
	if err != nil {
		d.logger.Error("Файл зарезервирован, но реплики не прочитаны",
			slog.Int64("project_id", projectID),
			slog.String("did", h.DID().String()),
			slog.String("worker_id", workerID),
			slog.String("error", err.Error()),
		)
		h.Replicas = nil
		res.Handle = h
		return res, nil
	}
	h.Replicas = d.rankReplicas(ctx, replicas[h.DID()], cpuSite)
	res.Handle = h

	d.logger.Debug("Файл зарезервирован",
		slog.Int64("project_id", projectID),
		slog.String("did", h.DID().String()),
		slog.String("worker_id", workerID),
		slog.Int("attempts", h.Attempts),
	)
	return res, nil
}

// rankReplicas оставляет пригодные реплики; при известном сайте упорядочивает
// их по близости. Ошибка чтения карты близости не мешает резервированию.
func (d *Dispatcher) rankReplicas(ctx context.Context, replicas []model.Replica, cpuSite string) []model.Replica {
	var prox map[string]int
	if cpuSite != "" && d.proximity != nil {
		var err error
		prox, err = d.proximity.ForSite(ctx, cpuSite)
		if err != nil {
			d.logger.Warn("Карта близости недоступна", slog.String("cpu_site", cpuSite), slog.String("error", err.Error()))
		}
	}
	return RankReplicas(replicas, prox)
}

// Release завершает резервирование файла. Для файла, который не
// зарезервирован, возвращает ErrNotFound.
func (d *Dispatcher) Release(ctx context.Context, projectID int64, did model.DID, failed, retry bool) (*model.FileHandle, error) {
	h, err := d.store.ReleaseHandle(ctx, projectID, did, failed, retry)
	if err != nil {
		return nil, fmt.Errorf("завершение резервирования: %w", err)
	}
	if h == nil {
		return nil, fmt.Errorf("%w: %s не зарезервирован в проекте %d", ErrNotFound, did, projectID)
	}

	result := "done"
	switch {
	case failed && retry:
		result = "retry"
	case failed:
		result = "failed"
	}
	releasesTotal.WithLabelValues(result).Inc()
	return h, nil
}

// Restart возвращает в initial handle в заданных состояниях и/или с заданными DID.
// Без фильтров перезапускаются failed handle.
func (d *Dispatcher) Restart(ctx context.Context, projectID int64, states []model.HandleState, dids []model.DID) (int, error) {
	for _, s := range states {
		if !s.Valid() || s == model.HandleInitial {
			return 0, fmt.Errorf("%w: недопустимое состояние для перезапуска %q", ErrValidation, s)
		}
	}
	if len(states) == 0 && len(dids) == 0 {
		states = []model.HandleState{model.HandleFailed}
	}
	if _, err := d.GetProject(ctx, projectID); err != nil {
		return 0, err
	}

	n, err := d.store.RestartHandles(ctx, projectID, states, dids)
	if err != nil {
		return 0, fmt.Errorf("перезапуск handle: %w", err)
	}

	d.logger.Info("Handle перезапущены",
		slog.Int64("project_id", projectID),
		slog.Int("count", n),
	)
	if n > 0 {
		d.kick(projectID)
	}
	return n, nil
}

func (d *Dispatcher) kick(projectID int64) {
	if d.kicker != nil {
		d.kicker.Kick(projectID)
	}
}

// --- RSE ---

// ListRSEs возвращает все зарегистрированные RSE.
func (d *Dispatcher) ListRSEs(ctx context.Context) ([]*model.RSE, error) {
	rses, err := d.store.ListRSEs(ctx)
	if err != nil {
		return nil, fmt.Errorf("получение списка RSE: %w", err)
	}
	return rses, nil
}

// SetRSEAvailability включает или выключает RSE. Реплики недоступного RSE
// не выдаются воркерам; кэш карты близости сбрасывается.
func (d *Dispatcher) SetRSEAvailability(ctx context.Context, name string, available bool) (*model.RSE, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: имя RSE обязательно", ErrValidation)
	}
	if err := d.store.SetRSEAvailable(ctx, name, available); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: RSE %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("изменение доступности RSE: %w", err)
	}
	if d.proximity != nil {
		d.proximity.Purge()
	}

	d.logger.Info("Доступность RSE изменена",
		slog.String("rse", name),
		slog.Bool("available", available),
	)

	rse, err := d.store.GetRSE(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("получение RSE: %w", err)
	}
	return rse, nil
}
