package postgres

/*
Файл metrics_repo.go — read-only контекст тенантов: организации, сайты и
исторические ряды метрик устойчивости. Эти таблицы принадлежат основному
SaaS-приложению; оркестратор их только читает (триггеры, инструменты, обучение).
*/

import (
	"context"
	"fmt"
	"time"

	"github.com/blipee-dev/blipee-orchestrator/internal/domain"
)

// ListActiveOrganizations — тенанты, для которых работают агенты и триггеры.
func (r *Repo) ListActiveOrganizations(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM organizations WHERE status = 'active' ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list organizations: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: scan organization id error: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListSeriesKeys возвращает все тройки (site, metric), по которым у организации
// есть данные — обход для планового переобучения.
func (r *Repo) ListSeriesKeys(ctx context.Context, orgID string) ([][2]string, error) {
	query := `
		SELECT DISTINCT site_id, metric_id FROM metric_values
		WHERE organization_id = $1
		ORDER BY site_id, metric_id`

	rows, err := r.pool.Query(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list series keys: %w", err)
	}
	defer rows.Close()

	keys := make([][2]string, 0)
	for rows.Next() {
		var site, metric string
		if err := rows.Scan(&site, &metric); err != nil {
			return nil, fmt.Errorf("postgres: scan series key error: %w", err)
		}
		keys = append(keys, [2]string{site, metric})
	}
	return keys, rows.Err()
}

// GetSeries читает месячный ряд метрики, начиная с since (хронологически).
func (r *Repo) GetSeries(ctx context.Context, orgID, siteID, metricID string, since time.Time) (*domain.MetricSeries, error) {
	query := `
		SELECT period, value FROM metric_values
		WHERE organization_id = $1 AND site_id = $2 AND metric_id = $3 AND period >= $4
		ORDER BY period ASC`

	rows, err := r.pool.Query(ctx, query, orgID, siteID, metricID, since)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query metric series: %w", err)
	}
	defer rows.Close()

	series := &domain.MetricSeries{OrganizationID: orgID, SiteID: siteID, MetricID: metricID}
	for rows.Next() {
		var p domain.MetricPoint
		if err := rows.Scan(&p.Date, &p.Value); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan metric point: %w", err)
		}
		series.Points = append(series.Points, p)
	}
	return series, rows.Err()
}

// GetOrgSeries — агрегат по всем сайтам организации (для триггеров уровня тенанта).
func (r *Repo) GetOrgSeries(ctx context.Context, orgID, metricID string, since time.Time) (*domain.MetricSeries, error) {
	query := `
		SELECT period, SUM(value) FROM metric_values
		WHERE organization_id = $1 AND metric_id = $2 AND period >= $3
		GROUP BY period
		ORDER BY period ASC`

	rows, err := r.pool.Query(ctx, query, orgID, metricID, since)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query org series: %w", err)
	}
	defer rows.Close()

	series := &domain.MetricSeries{OrganizationID: orgID, MetricID: metricID}
	for rows.Next() {
		var p domain.MetricPoint
		if err := rows.Scan(&p.Date, &p.Value); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan org series point: %w", err)
		}
		series.Points = append(series.Points, p)
	}
	return series, rows.Err()
}

// LastReportedPeriod — последний месяц, за который у организации есть данные.
// Используется правилом «дыра в данных».
func (r *Repo) LastReportedPeriod(ctx context.Context, orgID string) (time.Time, error) {
	var last time.Time
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(period), 'epoch'::timestamptz) FROM metric_values WHERE organization_id = $1`,
		orgID).Scan(&last)
	if err != nil {
		return time.Time{}, fmt.Errorf("postgres: failed to fetch last reported period: %w", err)
	}
	return last, nil
}
