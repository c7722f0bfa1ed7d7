package model

// Replica — копия файла на конкретном RSE.
// Хранится в таблице replicas, ключ (namespace, name, rse).
type Replica struct {
	Namespace  string `json:"namespace"`
	Name       string `json:"name"`
	RSE        string `json:"rse"`
	Path       string `json:"path"`
	URL        string `json:"url"`
	Preference int    `json:"preference"`
	// Available — локальный флаг, обновляется poller'ом и pinner'ом
	Available bool `json:"available"`
	// RSEAvailable — флаг is_available владеющего RSE (из JOIN)
	RSEAvailable bool `json:"rse_available"`
}

// Usable — реплика может быть прочитана воркером прямо сейчас.
func (r Replica) Usable() bool {
	return r.Available && r.RSEAvailable
}

// DID возвращает идентификатор файла реплики.
func (r Replica) DID() DID {
	return DID{Namespace: r.Namespace, Name: r.Name}
}

// ReplicaInfo — новое состояние реплики при синхронизации с каталогом.
type ReplicaInfo struct {
	Path       string
	URL        string
	Available  bool
	Preference int
}

// SyncStats — результат SyncReplicas.
type SyncStats struct {
	// Upserted — вставлено или изменено строк
	Upserted int
	// Removed — удалено строк для RSE, отсутствующих в новом наборе
	Removed int
}
