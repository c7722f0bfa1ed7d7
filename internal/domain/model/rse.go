package model

// RSE — Replica/Storage Element: именованная точка хранения (диск или лента).
// Хранится в таблице rses. Синхронизируется из внешнего реестра.
type RSE struct {
	// Name — уникальное имя RSE
	Name string `json:"name" yaml:"name"`
	// Description — описание
	Description string `json:"description,omitempty" yaml:"description"`
	// IsEnabled — RSE используется для раздачи (в YAML по умолчанию true)
	IsEnabled bool `json:"is_enabled" yaml:"-"`
	// IsAvailable — RSE сейчас доступен
	IsAvailable bool `json:"is_available" yaml:"-"`
	// IsTape — ленточный (near-line) RSE, требует staging
	IsTape bool `json:"is_tape" yaml:"is_tape"`
	// Type — тип staging-протокола (dcache, wlcg)
	Type string `json:"type,omitempty" yaml:"type"`
	// PinURL — endpoint staging-запросов (пусто — pinning не используется)
	PinURL string `json:"pin_url,omitempty" yaml:"pin_url"`
	// PollURL — endpoint проверки locality
	PollURL string `json:"poll_url,omitempty" yaml:"poll_url"`
	// RemovePrefix — префикс, удаляемый из пути реплики
	RemovePrefix string `json:"remove_prefix,omitempty" yaml:"remove_prefix"`
	// AddPrefix — префикс, добавляемый к пути реплики
	AddPrefix string `json:"add_prefix,omitempty" yaml:"add_prefix"`
	// PinPrefix — target-prefix для bulk pin запросов
	PinPrefix string `json:"pin_prefix,omitempty" yaml:"pin_prefix"`
	// Preference — приоритет реплик этого RSE (больше — лучше)
	Preference int `json:"preference" yaml:"preference"`
	// MaxPollBurst — максимум проверок locality за один проход (0 — по умолчанию)
	MaxPollBurst int `json:"max_poll_burst,omitempty" yaml:"max_poll_burst"`
}

// Proximity — близость вычислительного сайта к RSE.
// Хранится в таблице proximity_map.
type Proximity struct {
	CPUSite   string `json:"cpu_site" yaml:"cpu_site"`
	RSE       string `json:"rse" yaml:"rse"`
	Proximity int    `json:"proximity" yaml:"proximity"`
}
