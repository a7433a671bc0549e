package voice

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSpeaker struct {
	mu     sync.Mutex
	frames []string
}

func (r *recordingSpeaker) send(frameType, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, frameType+":"+text)
	return nil
}

func TestErrorFromCode(t *testing.T) {
	assert.ErrorIs(t, ErrorFromCode("not-allowed"), ErrMicrophonePermissionDenied)
	assert.ErrorIs(t, ErrorFromCode("service-not-allowed"), ErrMicrophonePermissionDenied)
	assert.ErrorIs(t, ErrorFromCode("aborted"), ErrRecognitionAborted)
	assert.ErrorIs(t, ErrorFromCode("unsupported"), ErrSpeechUnsupported)
	assert.ErrorIs(t, ErrorFromCode("no-speech"), ErrNoMatch)
	assert.ErrorIs(t, ErrorFromCode("network"), ErrNoMatch)
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t,
		"Microphone access was denied. Please enable microphone permissions in your browser settings.",
		UserMessage(ErrMicrophonePermissionDenied))
	assert.Equal(t,
		"Speech recognition was aborted. Please try again or use text input.",
		UserMessage(ErrRecognitionAborted))
	assert.Equal(t,
		"Your browser doesn't support speech recognition. Please use text input.",
		UserMessage(ErrSpeechUnsupported))
	assert.Equal(t,
		"Couldn't start microphone. Please check permissions and try again.",
		UserMessage(ErrMicrophoneUnavailable))
	assert.Equal(t,
		"Couldn't understand. Please try again or use text input.",
		UserMessage(ErrNoMatch))
}

func TestListener_Exclusive(t *testing.T) {
	rec := NewPushRecognizer()
	l := NewListener(rec)

	done := make(chan struct{})
	var text string
	var err error
	go func() {
		defer close(done)
		text, err = l.Listen(context.Background())
	}()

	require.Eventually(t, l.Active, time.Second, 5*time.Millisecond)

	_, second := l.Listen(context.Background())
	assert.ErrorIs(t, second, ErrListeningActive)

	rec.Deliver("how is grandma", nil)
	<-done

	require.NoError(t, err)
	assert.Equal(t, "how is grandma", text)
	assert.False(t, l.Active())
}

func TestListener_StopAborts(t *testing.T) {
	l := NewListener(NewPushRecognizer())

	// 没有监听时 Stop 安全
	assert.NotPanics(t, l.Stop)

	done := make(chan error, 1)
	go func() {
		_, err := l.Listen(context.Background())
		done <- err
	}()
	require.Eventually(t, l.Active, time.Second, 5*time.Millisecond)

	l.Stop()
	l.Stop()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrRecognitionAborted)
	case <-time.After(2 * time.Second):
		t.Fatal("listen did not stop")
	}
}

func TestListener_RecognitionError(t *testing.T) {
	rec := NewPushRecognizer()
	l := NewListener(rec)

	rec.Deliver("", ErrorFromCode("not-allowed"))
	_, err := l.Listen(context.Background())
	assert.ErrorIs(t, err, ErrMicrophonePermissionDenied)

	rec.Deliver("", nil)
	_, err = l.Listen(context.Background())
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestListener_Unsupported(t *testing.T) {
	_, err := NewListener(nil).Listen(context.Background())
	assert.ErrorIs(t, err, ErrSpeechUnsupported)
}

func TestVoice_SpeakCancelsPrevious(t *testing.T) {
	rs := &recordingSpeaker{}
	v := NewVoice(NewFrameSpeaker(rs.send))

	require.NoError(t, v.Speak(context.Background(), "first"))
	require.NoError(t, v.Speak(context.Background(), "second"))
	require.NoError(t, v.Stop())

	assert.Equal(t, []string{"stop:", "speak:first", "stop:", "speak:second", "stop:"}, rs.frames)
}

func TestVoice_NoSpeaker(t *testing.T) {
	v := NewVoice(nil)
	assert.ErrorIs(t, v.Speak(context.Background(), "hi"), ErrSpeechUnsupported)
	assert.NoError(t, v.Stop())
}

func TestPushRecognizer_DeliverDropsWhenFull(t *testing.T) {
	rec := NewPushRecognizer()
	assert.True(t, rec.Deliver("a", nil))
	assert.False(t, rec.Deliver("b", nil))

	rec.Drain()
	assert.True(t, rec.Deliver("c", nil))
}
