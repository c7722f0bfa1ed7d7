// Пакет model — доменные сущности Data Dispatcher.
package model

import "time"

// ProjectState — состояние проекта.
type ProjectState string

const (
	// ProjectActive — проект раздаёт файлы воркерам (начальное состояние)
	ProjectActive ProjectState = "active"
	// ProjectHeld — раздача приостановлена владельцем
	ProjectHeld ProjectState = "held"
	// ProjectAbandoned — проект простаивал дольше idle_timeout
	ProjectAbandoned ProjectState = "abandoned"
	// ProjectCancelled — проект отменён (конечное)
	ProjectCancelled ProjectState = "cancelled"
	// ProjectDone — все файлы обработаны успешно (конечное)
	ProjectDone ProjectState = "done"
	// ProjectFailed — все файлы в конечном состоянии, есть failed (конечное)
	ProjectFailed ProjectState = "failed"
)

// Terminal сообщает, является ли состояние конечным.
func (s ProjectState) Terminal() bool {
	return s == ProjectDone || s == ProjectFailed || s == ProjectCancelled
}

// Valid проверяет, что состояние входит в допустимый набор.
func (s ProjectState) Valid() bool {
	switch s {
	case ProjectActive, ProjectHeld, ProjectAbandoned, ProjectCancelled, ProjectDone, ProjectFailed:
		return true
	}
	return false
}

// Project — проект: набор файлов, раздаваемых воркерам.
// Хранится в таблице projects.
type Project struct {
	// ID — идентификатор проекта
	ID int64 `json:"project_id"`
	// Owner — владелец проекта
	Owner string `json:"owner"`
	// State — текущее состояние
	State ProjectState `json:"state"`
	// CreatedAt — время создания
	CreatedAt time.Time `json:"created_at"`
	// EndedAt — время перехода в конечное состояние
	EndedAt *time.Time `json:"ended_at,omitempty"`
	// Attributes — произвольные атрибуты проекта
	Attributes map[string]any `json:"attributes"`
	// Query — исходный запрос к каталогу (информационно)
	Query string `json:"query,omitempty"`
	// WorkerTimeout — время, после которого резервирование считается зависшим
	WorkerTimeout *time.Duration `json:"worker_timeout,omitempty"`
	// IdleTimeout — время простоя, после которого проект становится abandoned
	IdleTimeout *time.Duration `json:"idle_timeout,omitempty"`
	// Users — пользователи, которым разрешено управлять проектом
	Users []string `json:"users,omitempty"`
}

// NewProject — параметры создания проекта.
type NewProject struct {
	Owner         string
	Query         string
	Attributes    map[string]any
	WorkerTimeout *time.Duration
	IdleTimeout   *time.Duration
	Users         []string
	Files         []NewFile
}

// NewFile — файл, добавляемый в проект при создании.
type NewFile struct {
	DID        DID
	Attributes map[string]any
}
