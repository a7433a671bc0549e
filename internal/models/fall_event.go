package models

import "sort"

// FallEvent 设备上报的一条跌倒检测记录（写入后不可变）
type FallEvent struct {
	ID           string `json:"id"`
	Timestamp    int64  `json:"timestamp"` // Unix 毫秒
	FallDetected bool   `json:"fallDetected"`
	HeartRate    int    `json:"heartRate"`
}

// After 判断 e 是否比 other 更新：先比较时间戳，相同时按 ID 排序
func (e FallEvent) After(other FallEvent) bool {
	if e.Timestamp != other.Timestamp {
		return e.Timestamp > other.Timestamp
	}
	return e.ID > other.ID
}

// SortNewestFirst 按 (timestamp, id) 降序排序（原地）
func SortNewestFirst(events []FallEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].After(events[j])
	})
}

// SortOldestFirst 按 (timestamp, id) 升序排序（原地）
func SortOldestFirst(events []FallEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[j].After(events[i])
	})
}

// User 被监护人账号
type User struct {
	UserID           string `json:"userId"`
	Username         string `json:"email"`
	CredentialSecret string `json:"credentialSecret"`
}
