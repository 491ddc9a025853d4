package domain

// DashboardStats backs the admin dashboard.
type DashboardStats struct {
	TotalCars     int64  `json:"totalCars"`
	PendingCars   int64  `json:"pendingCars"`
	TotalUsers    int64  `json:"totalUsers"`
	TotalMessages int64  `json:"totalMessages"`
	RecentPending []*Car `json:"recentPending"`
}
