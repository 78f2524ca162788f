package model

// TotalTraffic is the network-wide traffic summary.
type TotalTraffic struct {
	TotalBytes   int64 `json:"total_bytes"`
	TotalPackets int   `json:"total_packets"`
	UniqueUsers  int   `json:"unique_users"`
	UniqueIPs    int   `json:"unique_ips"`
}

// UserTraffic is one entry of the per-user byte ranking.
type UserTraffic struct {
	User  string `json:"user"`
	Bytes int64  `json:"bytes"`
}

// CategoryTraffic is the byte total of one raw application category.
type CategoryTraffic struct {
	Category string `json:"category"`
	Bytes    int64  `json:"bytes"`
}

// HourActivity is the network-wide activity of one hour of the day.
type HourActivity struct {
	Hour        string `json:"hour"`
	ActiveUsers int    `json:"active_users"`
	TotalBytes  int64  `json:"total_bytes"`
	PacketCount int    `json:"packet_count"`
}

// TrendPoint is the byte total of one hourly time bucket.
type TrendPoint struct {
	Time  string `json:"time"`
	Bytes int64  `json:"bytes"`
}

// Overview holds the network-wide summaries used for reporting.
type Overview struct {
	TotalTraffic TotalTraffic      `json:"total_traffic"`
	UserRanking  []UserTraffic     `json:"user_ranking"`
	AppCategory  []CategoryTraffic `json:"app_category"`
	ActiveHours  []HourActivity    `json:"active_hours"`
	TrafficTrend []TrendPoint      `json:"traffic_trend"`
}
