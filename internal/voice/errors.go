package voice

import "errors"

var (
	// ErrSpeechUnsupported 客户端不支持语音识别/合成
	ErrSpeechUnsupported = errors.New("speech unsupported")
	// ErrMicrophonePermissionDenied 麦克风权限被拒绝
	ErrMicrophonePermissionDenied = errors.New("microphone permission denied")
	// ErrRecognitionAborted 识别被中止
	ErrRecognitionAborted = errors.New("recognition aborted")
	// ErrNoMatch 未能识别出文本
	ErrNoMatch = errors.New("no match")
	// ErrMicrophoneUnavailable 无法启动麦克风
	ErrMicrophoneUnavailable = errors.New("microphone unavailable")
	// ErrListeningActive 已有监听会话
	ErrListeningActive = errors.New("listening session already active")
)

// ErrorFromCode 浏览器识别错误码 -> 错误类别
func ErrorFromCode(code string) error {
	switch code {
	case "not-allowed", "service-not-allowed":
		return ErrMicrophonePermissionDenied
	case "aborted":
		return ErrRecognitionAborted
	case "unsupported":
		return ErrSpeechUnsupported
	case "audio-capture", "start-failed":
		return ErrMicrophoneUnavailable
	default:
		// no-speech / network / language-not-supported 等
		return ErrNoMatch
	}
}

// UserMessage 错误 -> 展示给用户的提示
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrMicrophonePermissionDenied):
		return "Microphone access was denied. Please enable microphone permissions in your browser settings."
	case errors.Is(err, ErrRecognitionAborted):
		return "Speech recognition was aborted. Please try again or use text input."
	case errors.Is(err, ErrSpeechUnsupported):
		return "Your browser doesn't support speech recognition. Please use text input."
	case errors.Is(err, ErrMicrophoneUnavailable):
		return "Couldn't start microphone. Please check permissions and try again."
	default:
		return "Couldn't understand. Please try again or use text input."
	}
}
