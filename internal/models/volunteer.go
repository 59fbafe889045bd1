package models

// Volunteer 附近的志愿响应者（Hero Network 成员，来自空间检索）
type Volunteer struct {
	ID         string   `json:"id" db:"volunteer_id"`
	Name       string   `json:"name" db:"name"`
	Phone      string   `json:"phone" db:"phone"`
	Location   Location `json:"location"`
	DistanceKm float64  `json:"distance_km"`
}
