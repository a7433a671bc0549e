package models

import "time"

const (
	// LabelLayout 图表与统计卡片上的时间标签
	LabelLayout = "Jan 2, 03:04 PM"
	// SpokenLayout 助手回复中的时间
	SpokenLayout = "1/2/2006, 3:04:05 PM"
)

// EventTime 毫秒时间戳 -> 指定时区的时间
func EventTime(ms int64, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.UnixMilli(ms).In(loc)
}

func FormatLabel(ms int64, loc *time.Location) string {
	return EventTime(ms, loc).Format(LabelLayout)
}

func FormatSpoken(ms int64, loc *time.Location) string {
	return EventTime(ms, loc).Format(SpokenLayout)
}
