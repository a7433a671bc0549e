package models

// Stats 窗口派生统计（不落库）
type Stats struct {
	TotalFalls      int    `json:"totalFalls"`
	AvgHeartRate    int    `json:"avgHeartRate"`
	LatestHeartRate int    `json:"latestHeartRate"`
	LastFallTime    *int64 `json:"lastFallTime,omitempty"`
	LastFallLabel   string `json:"lastFallLabel"`
}

// SeriesPoint 心率趋势图中的一个点
type SeriesPoint struct {
	Timestamp    int64  `json:"timestamp"`
	Label        string `json:"label"`
	HeartRate    int    `json:"heartRate"`
	FallDetected bool   `json:"fallDetected"`
}
