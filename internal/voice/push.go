package voice

import (
	"context"
	"errors"
)

// Result 客户端上报的一次识别结果
type Result struct {
	Text string
	Err  error
}

// PushRecognizer 识别在客户端完成，结果通过 Deliver 推入
type PushRecognizer struct {
	results chan Result
}

func NewPushRecognizer() *PushRecognizer {
	return &PushRecognizer{results: make(chan Result, 1)}
}

// Deliver 推入结果；没有等待中的 Recognize 且缓冲已满时丢弃
func (p *PushRecognizer) Deliver(text string, err error) bool {
	select {
	case p.results <- Result{Text: text, Err: err}:
		return true
	default:
		return false
	}
}

// Drain 清除未被消费的结果
func (p *PushRecognizer) Drain() {
	for {
		select {
		case <-p.results:
		default:
			return
		}
	}
}

func (p *PushRecognizer) Recognize(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-p.results:
		if r.Err != nil {
			return "", r.Err
		}
		if r.Text == "" {
			return "", ErrNoMatch
		}
		return r.Text, nil
	}
}

// FrameSender 向客户端发送控制帧
type FrameSender func(frameType, text string) error

// FrameSpeaker 合成在客户端完成：发送 speak / stop 帧
type FrameSpeaker struct {
	send FrameSender
}

func NewFrameSpeaker(send FrameSender) *FrameSpeaker {
	return &FrameSpeaker{send: send}
}

const (
	FrameSpeak = "speak"
	FrameStop  = "stop"
)

func (f *FrameSpeaker) Speak(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if text == "" {
		return errors.New("empty utterance")
	}
	return f.send(FrameSpeak, text)
}

func (f *FrameSpeaker) Stop() error {
	return f.send(FrameStop, "")
}
