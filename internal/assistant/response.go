package assistant

import (
	"fmt"
	"time"

	"github.com/Kaiettt/iot-fall-detection/internal/models"
)

// OutcomeKind 一次处理的结果类别
type OutcomeKind string

const (
	OutcomeGreeting    OutcomeKind = "greeting"
	OutcomeNoSession   OutcomeKind = "no_session"
	OutcomeNoIdentity  OutcomeKind = "no_identity"
	OutcomeNoEvents    OutcomeKind = "no_events"
	OutcomeLatestEvent OutcomeKind = "latest_event"
	OutcomeStoreError  OutcomeKind = "store_error"
)

const (
	greetingText   = "How can I help you?"
	noSessionText  = "Please log in so I can check on your family member."
	noIdentityText = "I couldn't find your account information. Please make sure you're logged in."
	noEventsText   = "I don't have any fall data for your family member at the moment."
	storeErrorText = "Sorry, I couldn't access the fall detection data. Please try again later."
	fallText       = "I'm concerned. There was a fall detected at %s. Heart rate was %d BPM. You might want to check on them."
	okText         = "Based on the latest data from %s, everything seems okay. No falls were detected and heart rate was %d BPM."
)

// Outcome Event 仅在 OutcomeLatestEvent 时有效
type Outcome struct {
	Kind  OutcomeKind
	Event models.FallEvent
}

// Synthesize 结果 -> 回复文本（底层错误不会出现在文本中）
func Synthesize(o Outcome, loc *time.Location) string {
	switch o.Kind {
	case OutcomeGreeting:
		return greetingText
	case OutcomeNoSession:
		return noSessionText
	case OutcomeNoIdentity:
		return noIdentityText
	case OutcomeNoEvents:
		return noEventsText
	case OutcomeLatestEvent:
		ts := FormatTimestamp(o.Event.Timestamp, loc)
		if o.Event.FallDetected {
			return fmt.Sprintf(fallText, ts, o.Event.HeartRate)
		}
		return fmt.Sprintf(okText, ts, o.Event.HeartRate)
	default:
		return storeErrorText
	}
}

// FormatTimestamp 回复中使用的本地时间格式
func FormatTimestamp(ms int64, loc *time.Location) string {
	return models.FormatSpoken(ms, loc)
}
