package repository

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"narcoguard-monitor/internal/models"
)

// VolunteersRepository 志愿响应者仓库（volunteer_responders 表）
type VolunteersRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewVolunteersRepository 创建志愿响应者仓库
func NewVolunteersRepository(db *sql.DB, logger *zap.Logger) *VolunteersRepository {
	return &VolunteersRepository{
		db:     db,
		logger: logger,
	}
}

// FindNearby 检索位置附近可用的志愿响应者（按距离升序）
// SQL 用经纬度包围盒做粗过滤，精确距离在应用内计算
func (r *VolunteersRepository) FindNearby(ctx context.Context, location models.Location, radiusKm float64) ([]models.Volunteer, error) {
	if radiusKm <= 0 {
		return nil, fmt.Errorf("radius must be positive")
	}

	// 1 纬度 ≈ 111km；经度按纬度收缩
	latDelta := radiusKm / 111.0
	lngDelta := radiusKm / (111.0 * math.Cos(location.Latitude*math.Pi/180))

	query := `
		SELECT
			volunteer_id,
			name,
			phone,
			latitude,
			longitude
		FROM volunteer_responders
		WHERE available = true
		  AND latitude BETWEEN $1 AND $2
		  AND longitude BETWEEN $3 AND $4
	`

	rows, err := r.db.QueryContext(ctx, query,
		location.Latitude-latDelta,
		location.Latitude+latDelta,
		location.Longitude-lngDelta,
		location.Longitude+lngDelta,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find nearby volunteers: %w", err)
	}
	defer rows.Close()

	var volunteers []models.Volunteer
	for rows.Next() {
		var v models.Volunteer

		if err := rows.Scan(
			&v.ID,
			&v.Name,
			&v.Phone,
			&v.Location.Latitude,
			&v.Location.Longitude,
		); err != nil {
			return nil, fmt.Errorf("failed to scan volunteer: %w", err)
		}

		// 精确距离过滤（包围盒的四角超出半径）
		v.DistanceKm = haversineKm(location, v.Location)
		if v.DistanceKm <= radiusKm {
			volunteers = append(volunteers, v)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate volunteers: %w", err)
	}

	sort.Slice(volunteers, func(i, j int) bool {
		return volunteers[i].DistanceKm < volunteers[j].DistanceKm
	})

	return volunteers, nil
}

// haversineKm 球面距离（公里）
func haversineKm(a, b models.Location) float64 {
	const earthRadiusKm = 6371.0

	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLng := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)

	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}
