package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/datadispatcher/internal/domain/model"
)

// RSERepository — интерфейс доступа к таблицам rses и proximity_map.
type RSERepository interface {
	// Get возвращает RSE по имени.
	Get(ctx context.Context, name string) (*model.RSE, error)
	// List возвращает все RSE.
	List(ctx context.Context) ([]*model.RSE, error)
	// Upsert создаёт или обновляет RSE. Возвращает true, если строка изменилась.
	Upsert(ctx context.Context, rse *model.RSE) (bool, error)
	// SetAvailable меняет флаг is_available RSE.
	SetAvailable(ctx context.Context, name string, available bool) error
	// ProximityForSite возвращает близость сайта ко всем RSE.
	ProximityForSite(ctx context.Context, cpuSite string) (map[string]int, error)
	// UpsertProximity создаёт или обновляет строку карты близости.
	UpsertProximity(ctx context.Context, p model.Proximity) error
}

// rseRepo — реализация RSERepository.
type rseRepo struct {
	db DBTX
}

// NewRSERepository создаёт репозиторий RSE.
func NewRSERepository(db DBTX) RSERepository {
	return &rseRepo{db: db}
}

const rseColumns = `name, description, is_enabled, is_available, is_tape, type,
	pin_url, poll_url, remove_prefix, add_prefix, pin_prefix, preference, max_poll_burst`

func scanRSE(row pgx.Row) (*model.RSE, error) {
	rse := &model.RSE{}
	err := row.Scan(
		&rse.Name, &rse.Description, &rse.IsEnabled, &rse.IsAvailable, &rse.IsTape, &rse.Type,
		&rse.PinURL, &rse.PollURL, &rse.RemovePrefix, &rse.AddPrefix, &rse.PinPrefix,
		&rse.Preference, &rse.MaxPollBurst,
	)
	if err != nil {
		return nil, err
	}
	return rse, nil
}

func (r *rseRepo) Get(ctx context.Context, name string) (*model.RSE, error) {
	rse, err := scanRSE(r.db.QueryRow(ctx, `SELECT `+rseColumns+` FROM rses WHERE name = $1`, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения RSE: %w", err)
	}
	return rse, nil
}

func (r *rseRepo) List(ctx context.Context) ([]*model.RSE, error) {
	rows, err := r.db.Query(ctx, `SELECT `+rseColumns+` FROM rses ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка RSE: %w", err)
	}
	defer rows.Close()

	var result []*model.RSE
	for rows.Next() {
		rse, err := scanRSE(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования RSE: %w", err)
		}
		result = append(result, rse)
	}
	return result, rows.Err()
}

func (r *rseRepo) Upsert(ctx context.Context, rse *model.RSE) (bool, error) {
	query := `
		INSERT INTO rses AS s (` + rseColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (name) DO UPDATE SET
			description = EXCLUDED.description,
			is_enabled = EXCLUDED.is_enabled,
			is_available = EXCLUDED.is_available,
			is_tape = EXCLUDED.is_tape,
			type = EXCLUDED.type,
			pin_url = EXCLUDED.pin_url,
			poll_url = EXCLUDED.poll_url,
			remove_prefix = EXCLUDED.remove_prefix,
			add_prefix = EXCLUDED.add_prefix,
			pin_prefix = EXCLUDED.pin_prefix,
			preference = EXCLUDED.preference,
			max_poll_burst = EXCLUDED.max_poll_burst
		WHERE (s.description, s.is_enabled, s.is_available, s.is_tape, s.type, s.pin_url, s.poll_url,
				s.remove_prefix, s.add_prefix, s.pin_prefix, s.preference, s.max_poll_burst)
			IS DISTINCT FROM
			(EXCLUDED.description, EXCLUDED.is_enabled, EXCLUDED.is_available, EXCLUDED.is_tape,
				EXCLUDED.type, EXCLUDED.pin_url, EXCLUDED.poll_url, EXCLUDED.remove_prefix,
				EXCLUDED.add_prefix, EXCLUDED.pin_prefix, EXCLUDED.preference, EXCLUDED.max_poll_burst)
		RETURNING 1`

	var one int
	err := r.db.QueryRow(ctx, query,
		rse.Name, rse.Description, rse.IsEnabled, rse.IsAvailable, rse.IsTape, rse.Type,
		rse.PinURL, rse.PollURL, rse.RemovePrefix, rse.AddPrefix, rse.PinPrefix,
		rse.Preference, rse.MaxPollBurst,
	).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("ошибка upsert RSE %s: %w", rse.Name, err)
	}
	return true, nil
}

func (r *rseRepo) SetAvailable(ctx context.Context, name string, available bool) error {
	tag, err := r.db.Exec(ctx, `UPDATE rses SET is_available = $2 WHERE name = $1`, name, available)
	if err != nil {
		return fmt.Errorf("ошибка обновления доступности RSE: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *rseRepo) ProximityForSite(ctx context.Context, cpuSite string) (map[string]int, error) {
	rows, err := r.db.Query(ctx,
		`SELECT rse, proximity FROM proximity_map WHERE cpu_site = $1`, cpuSite)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения карты близости: %w", err)
	}
	defer rows.Close()

	result := make(map[string]int)
	for rows.Next() {
		var rse string
		var proximity int
		if err := rows.Scan(&rse, &proximity); err != nil {
			return nil, fmt.Errorf("ошибка сканирования карты близости: %w", err)
		}
		result[rse] = proximity
	}
	return result, rows.Err()
}

func (r *rseRepo) UpsertProximity(ctx context.Context, p model.Proximity) error {
	query := `
		INSERT INTO proximity_map (cpu_site, rse, proximity)
		VALUES ($1, $2, $3)
		ON CONFLICT (cpu_site, rse) DO UPDATE SET proximity = EXCLUDED.proximity`

	if _, err := r.db.Exec(ctx, query, p.CPUSite, p.RSE, p.Proximity); err != nil {
		return fmt.Errorf("ошибка upsert карты близости: %w", err)
	}
	return nil
}
