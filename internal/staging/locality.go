package staging

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/bigkaa/datadispatcher/internal/httpclient"
)

// LocalityClient проверяет, находится ли файл на диске RSE
// (GET <poll_url><path>?locality=true → {"fileLocality": "..."}).
type LocalityClient struct {
	client  *httpclient.Client
	pollURL string
}

// NewLocalityClient создаёт клиент locality endpoint RSE.
func NewLocalityClient(client *httpclient.Client, pollURL string) *LocalityClient {
	return &LocalityClient{
		client:  client,
		pollURL: strings.TrimRight(pollURL, "/"),
	}
}

type localityResponse struct {
	FileLocality string `json:"fileLocality"`
}

// Online возвращает true, если locality файла содержит ONLINE
// (ONLINE или ONLINE_AND_NEARLINE). Для отсутствующего файла возвращает ErrNotFound.
func (c *LocalityClient) Online(ctx context.Context, path string) (bool, error) {
	base, err := url.Parse(c.pollURL)
	if err != nil {
		return false, fmt.Errorf("некорректный poll_url %q: %w", c.pollURL, err)
	}
	// Путь файла — один неэкранированный элемент: %, # и ? в имени остаются
	// частью пути
	u := base.JoinPath(path)
	q := u.Query()
	q.Set("locality", "true")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return false, fmt.Errorf("создание запроса locality: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if resp.StatusCode != http.StatusOK {
		return false, httpclient.StatusError(resp)
	}

	var loc localityResponse
	if err := json.NewDecoder(resp.Body).Decode(&loc); err != nil {
		return false, fmt.Errorf("декодирование locality %s: %w", path, err)
	}
	return strings.Contains(loc.FileLocality, "ONLINE"), nil
}
