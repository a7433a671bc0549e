package consumer

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Kaiettt/iot-fall-detection/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// ErrInvalidPayload 设备上报内容无法解析或校验失败
var ErrInvalidPayload = errors.New("invalid device payload")

var validate = validator.New()

// DevicePayload 设备上报格式，id 缺省时由服务端生成
type DevicePayload struct {
	ID           string `json:"id" validate:"omitempty,max=128"`
	Timestamp    int64  `json:"timestamp" validate:"required,gt=0"`
	FallDetected bool   `json:"fallDetected"`
	HeartRate    int    `json:"heartRate" validate:"gte=0,lte=300"`
}

// ParsePayload JSON -> FallEvent
func ParsePayload(data []byte) (models.FallEvent, error) {
	var p DevicePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return models.FallEvent{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return p.ToEvent()
}

// ToEvent 校验并转换
func (p DevicePayload) ToEvent() (models.FallEvent, error) {
	if err := validate.Struct(p); err != nil {
		return models.FallEvent{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	id := p.ID
	if id == "" {
		id = uuid.NewString()
	}
	return models.FallEvent{
		ID:           id,
		Timestamp:    p.Timestamp,
		FallDetected: p.FallDetected,
		HeartRate:    p.HeartRate,
	}, nil
}
