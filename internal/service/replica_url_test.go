package service

import (
	"testing"

	"github.com/bigkaa/datadispatcher/internal/domain/model"
)

// TestReplicaPath проверяет нормализацию URL реплик.
func TestReplicaPath(t *testing.T) {
	tests := []struct {
		name string
		rse  model.RSE
		url  string
		want string
	}{
		{
			name: "xrootd двойной слэш",
			url:  "root://eos.example:1094//eos/data/f1",
			want: "/eos/data/f1",
		},
		{
			name: "https без изменений",
			url:  "https://webdav.example/pnfs/data/f1",
			want: "/pnfs/data/f1",
		},
		{
			name: "remove_prefix",
			rse:  model.RSE{RemovePrefix: "/pnfs/example.org"},
			url:  "https://dcache.example/pnfs/example.org/data/f1",
			want: "/data/f1",
		},
		{
			name: "remove_prefix и add_prefix",
			rse:  model.RSE{RemovePrefix: "/eos", AddPrefix: "/tape/"},
			url:  "root://eos.example//eos/data/f1",
			want: "/tape/data/f1",
		},
		{
			name: "remove_prefix не совпадает",
			rse:  model.RSE{RemovePrefix: "/other"},
			url:  "https://a/data/f1",
			want: "/data/f1",
		},
		{
			name: "путь без схемы",
			url:  "/local/data/f1",
			want: "/local/data/f1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := replicaPath(&tt.rse, tt.url)
			if err != nil {
				t.Fatalf("replicaPath ошибка: %v", err)
			}
			if got != tt.want {
				t.Errorf("replicaPath(%q) = %q, ожидалось %q", tt.url, got, tt.want)
			}
		})
	}
}

// TestReplicaInfo проверяет начальную доступность и preference.
func TestReplicaInfo(t *testing.T) {
	disk := &model.RSE{Name: "DISK", Preference: 5}
	tape := &model.RSE{Name: "TAPE", IsTape: true, Preference: 1}

	info, err := replicaInfo(disk, []string{"https://a/f1", "https://b/f1"})
	if err != nil {
		t.Fatalf("replicaInfo ошибка: %v", err)
	}
	if !info.Available || info.Preference != 5 || info.URL != "https://a/f1" || info.Path != "/f1" {
		t.Errorf("disk: %+v", info)
	}

	info, err = replicaInfo(tape, []string{"https://t/f1"})
	if err != nil {
		t.Fatalf("replicaInfo ошибка: %v", err)
	}
	if info.Available {
		t.Error("реплика на ленте не должна сразу считаться доступной")
	}

	if _, err := replicaInfo(disk, nil); err == nil {
		t.Error("ожидалась ошибка для пустого списка URL")
	}
}
