package model

import "time"

// LogRecord — неизменяемая запись журнала сущности.
// Таблицы project_log, file_handle_log, replica_log, rse_log.
type LogRecord struct {
	Type string         `json:"type"`
	T    time.Time      `json:"t"`
	Data map[string]any `json:"data,omitempty"`
}

// HandleLogRecord — запись журнала file handle с ключом файла.
type HandleLogRecord struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
	LogRecord
}
