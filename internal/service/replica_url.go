// replica_url.go — нормализация URL реплик из каталога в пути на RSE.
package service

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/bigkaa/datadispatcher/internal/domain/model"
)

// replicaPath вычисляет путь реплики на RSE по URL из каталога.
//
// Для схем root/xroot путь в URL начинается с двойного слэша
// (root://host//pnfs/...), лишние слэши убираются. Затем применяются
// правила RSE: remove_prefix удаляется из начала пути, add_prefix добавляется.
func replicaPath(rse *model.RSE, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("некорректный URL реплики %q: %w", rawURL, err)
	}

	path := u.Path
	switch u.Scheme {
	case "root", "xroot", "xroots":
		for strings.HasPrefix(path, "//") {
			path = path[1:]
		}
	}

	if rse.RemovePrefix != "" {
		path = strings.TrimPrefix(path, rse.RemovePrefix)
	}
	if rse.AddPrefix != "" {
		if strings.HasSuffix(rse.AddPrefix, "/") && strings.HasPrefix(path, "/") {
			path = path[1:]
		}
		path = rse.AddPrefix + path
	}
	return path, nil
}

// replicaInfo строит новое состояние реплики для SyncReplicas.
// Реплики на дисковых RSE сразу считаются доступными; ленточные — после
// подтверждения poller'ом или pinner'ом.
func replicaInfo(rse *model.RSE, urls []string) (model.ReplicaInfo, error) {
	if len(urls) == 0 {
		return model.ReplicaInfo{}, fmt.Errorf("RSE %s: нет URL реплики", rse.Name)
	}
	path, err := replicaPath(rse, urls[0])
	if err != nil {
		return model.ReplicaInfo{}, err
	}
	return model.ReplicaInfo{
		Path:       path,
		URL:        urls[0],
		Available:  !rse.IsTape,
		Preference: rse.Preference,
	}, nil
}
