// dephealth_test.go — unit-тесты для нормализации имён зависимостей и путей проверки.
package service

import (
	"testing"
)

// TestDepName проверяет нормализацию имён RSE для dephealth.
func TestDepName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "простое имя",
			input:    "fndca-pin",
			expected: "fndca-pin",
		},
		{
			name:     "верхний регистр и подчёркивания",
			input:    "FNAL_DCACHE_TAPE-pin",
			expected: "fnal-dcache-tape-pin",
		},
		{
			name:     "начинается с цифры — префикс rse-",
			input:    "1st_tape-poll",
			expected: "rse-1st-tape-poll",
		},
		{
			name:     "trim дефисов по краям",
			input:    "__tape__",
			expected: "tape",
		},
		{
			name:     "только спецсимволы",
			input:    "!!!",
			expected: "unknown-rse",
		},
		{
			name:     "имя длиннее 63 символов обрезается",
			input:    "abcdefghijklmnopqrstuvwxyz-abcdefghijklmnopqrstuvwxyz-1234567890-extra",
			expected: "abcdefghijklmnopqrstuvwxyz-abcdefghijklmnopqrstuvwxyz-123456789",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := depName(tt.input); got != tt.expected {
				t.Errorf("depName(%q) = %q, ожидалось %q", tt.input, got, tt.expected)
			}
		})
	}
}

// TestJoinHealthPath проверяет построение пути проверки.
func TestJoinHealthPath(t *testing.T) {
	tests := []struct {
		base, suffix, expected string
	}{
		{"https://catalog.example.org", "/ping", "/ping"},
		{"https://catalog.example.org/api/", "/ping", "/api/ping"},
		{"https://tape.example.org:3880/api/v1/bulk-requests", "", "/api/v1/bulk-requests"},
		{"https://tape.example.org", "", "/"},
	}

	for _, tt := range tests {
		if got := joinHealthPath(tt.base, tt.suffix); got != tt.expected {
			t.Errorf("joinHealthPath(%q, %q) = %q, ожидалось %q", tt.base, tt.suffix, got, tt.expected)
		}
	}
}
