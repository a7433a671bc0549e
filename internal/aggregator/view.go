package aggregator

import (
	"math"
	"time"

	"github.com/Kaiettt/iot-fall-detection/internal/models"
)

// NoFallsLabel 窗口内没有跌倒时的展示文本
const NoFallsLabel = "No falls detected"

// State 引擎状态
type State string

const (
	StateIdle     State = "idle"
	StateLive     State = "live"
	StateTerminal State = "terminal"
	StateStopped  State = "stopped"
)

// View 一次完整发布的看板数据（整体替换，读方不会看到新旧混合）
type View struct {
	UserID  string               `json:"userId,omitempty"`
	Window  []models.FallEvent   `json:"window"` // 最新在前
	Series  []models.SeriesPoint `json:"series"` // 时间升序
	Stats   models.Stats         `json:"stats"`
	Version uint64               `json:"version"`
	State   State                `json:"state"`
	Reason  string               `json:"reason,omitempty"`
}

// EmptyView 空窗口
func EmptyView(state State, reason string) View {
	v := Compute(nil, 0, nil)
	v.State = state
	v.Reason = reason
	return v
}

// Compute 由窗口事件计算统计与趋势序列（纯函数，不修改入参）
//   - totalFalls: 跌倒事件数
//   - avgHeartRate: 心率均值四舍五入，空窗口为 0
//   - latestHeartRate: 最新事件心率
//   - lastFallTime: 最新一次跌倒的时间
//   - series: 最近 seriesSize 条，按时间升序
func Compute(events []models.FallEvent, seriesSize int, loc *time.Location) View {
	window := make([]models.FallEvent, len(events))
	copy(window, events)
	models.SortNewestFirst(window)

	stats := models.Stats{LastFallLabel: NoFallsLabel}
	sum := 0
	for _, e := range window {
		sum += e.HeartRate
		if e.FallDetected {
			stats.TotalFalls++
			if stats.LastFallTime == nil {
				ts := e.Timestamp
				stats.LastFallTime = &ts
				stats.LastFallLabel = models.FormatLabel(ts, loc)
			}
		}
	}
	if len(window) > 0 {
		stats.AvgHeartRate = roundHalfUp(float64(sum) / float64(len(window)))
		stats.LatestHeartRate = window[0].HeartRate
	}

	n := len(window)
	if seriesSize >= 0 && n > seriesSize {
		n = seriesSize
	}
	series := make([]models.SeriesPoint, 0, n)
	for i := n - 1; i >= 0; i-- {
		e := window[i]
		series = append(series, models.SeriesPoint{
			Timestamp:    e.Timestamp,
			Label:        models.FormatLabel(e.Timestamp, loc),
			HeartRate:    e.HeartRate,
			FallDetected: e.FallDetected,
		})
	}

	return View{
		Window: window,
		Series: series,
		Stats:  stats,
		State:  StateLive,
	}
}

func roundHalfUp(x float64) int {
	return int(math.Floor(x + 0.5))
}
