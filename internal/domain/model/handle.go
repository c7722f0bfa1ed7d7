package model

import (
	"fmt"
	"strings"
	"time"
)

// HandleState — хранимое состояние file handle.
type HandleState string

const (
	HandleInitial  HandleState = "initial"
	HandleReserved HandleState = "reserved"
	HandleDone     HandleState = "done"
	HandleFailed   HandleState = "failed"
)

// Terminal сообщает, является ли состояние конечным.
func (s HandleState) Terminal() bool {
	return s == HandleDone || s == HandleFailed
}

// Valid проверяет, что состояние входит в допустимый набор.
func (s HandleState) Valid() bool {
	switch s {
	case HandleInitial, HandleReserved, HandleDone, HandleFailed:
		return true
	}
	return false
}

// Производные состояния handle в состоянии initial. Не хранятся в БД.
const (
	DerivedAvailable = "available"
	DerivedFound     = "found"
	DerivedNotFound  = "not found"
)

// DID — идентификатор файла namespace:name.
type DID struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
}

// String возвращает DID в форме namespace:name.
func (d DID) String() string {
	return d.Namespace + ":" + d.Name
}

// ParseDID разбирает строку namespace:name.
// Разделителем считается первое двоеточие: имя файла может содержать ':'.
func ParseDID(s string) (DID, error) {
	ns, name, ok := strings.Cut(s, ":")
	if !ok || ns == "" || name == "" {
		return DID{}, fmt.Errorf("некорректный DID %q: ожидается namespace:name", s)
	}
	return DID{Namespace: ns, Name: name}, nil
}

// FileHandle — файл внутри проекта.
// Хранится в таблице file_handles, ключ (project_id, namespace, name).
type FileHandle struct {
	ProjectID     int64          `json:"project_id"`
	Namespace     string         `json:"namespace"`
	Name          string         `json:"name"`
	State         HandleState    `json:"state"`
	WorkerID      *string        `json:"worker_id,omitempty"`
	Attempts      int            `json:"attempts"`
	ReservedSince *time.Time     `json:"reserved_since,omitempty"`
	Attributes    map[string]any `json:"attributes"`
	// Replicas заполняется только там, где реплики нужны вызывающему коду
	Replicas []Replica `json:"replicas,omitempty"`
}

// DID возвращает идентификатор файла handle.
func (h *FileHandle) DID() DID {
	return DID{Namespace: h.Namespace, Name: h.Name}
}

// Active — handle ещё не в конечном состоянии.
func (h *FileHandle) Active() bool {
	return !h.State.Terminal()
}

// DerivedState вычисляет производное состояние по репликам.
// Для handle не в состоянии initial возвращает хранимое состояние.
func (h *FileHandle) DerivedState() string {
	if h.State != HandleInitial {
		return string(h.State)
	}
	if len(h.Replicas) == 0 {
		return DerivedNotFound
	}
	for _, r := range h.Replicas {
		if r.Usable() {
			return DerivedAvailable
		}
	}
	return DerivedFound
}

// ReserveStatus — результат попытки резервирования.
type ReserveStatus string

const (
	// ReserveOK — handle зарезервирован за воркером
	ReserveOK ReserveStatus = "reserved"
	// ReserveRetry — подходящих handle сейчас нет, проект активен: повторить позже
	ReserveRetry ReserveStatus = "retry"
	// ReserveEnded — проект больше не активен
	ReserveEnded ReserveStatus = "ended"
)
