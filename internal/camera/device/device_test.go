package device

import (
	"context"
	"errors"
	"image"
	"sync/atomic"
	"testing"
	"time"
)

type stubCapture struct {
	closed atomic.Bool
}

func (s *stubCapture) Size() (int, int)             { return 640, 480 }
func (s *stubCapture) SetSize(int, int)             {}
func (s *stubCapture) SetFPS(int)                   {}
func (s *stubCapture) SetAutofocus(bool)            {}
func (s *stubCapture) SetFocusPoint(int, int) bool  { return false }
func (s *stubCapture) ReadJPEG(int) ([]byte, error) { return []byte{0xFF, 0xD8}, nil }

func (s *stubCapture) ReadImage() (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, 2, 2)), nil
}

func (s *stubCapture) Close() error {
	s.closed.Store(true)
	return nil
}

func TestOpenWithTimeout(t *testing.T) {
	t.Run("opens promptly", func(t *testing.T) {
		want := &stubCapture{}
		opener := OpenerFunc(func(int) (Capture, error) { return want, nil })

		got, err := OpenWithTimeout(context.Background(), opener, 0, time.Second)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != want {
			t.Errorf("got a different capture than the opener returned")
		}
	})

	t.Run("propagates open error", func(t *testing.T) {
		opener := OpenerFunc(func(int) (Capture, error) { return nil, ErrNotOpened })

		_, err := OpenWithTimeout(context.Background(), opener, 3, time.Second)
		if !errors.Is(err, ErrNotOpened) {
			t.Errorf("expected ErrNotOpened, got %v", err)
		}
	})

	t.Run("times out and releases late capture", func(t *testing.T) {
		late := &stubCapture{}
		release := make(chan struct{})
		opener := OpenerFunc(func(int) (Capture, error) {
			<-release
			return late, nil
		})

		start := time.Now()
		_, err := OpenWithTimeout(context.Background(), opener, 1, 50*time.Millisecond)
		if !errors.Is(err, ErrOpenTimeout) {
			t.Fatalf("expected ErrOpenTimeout, got %v", err)
		}
		if elapsed := time.Since(start); elapsed > time.Second {
			t.Errorf("timeout took too long: %s", elapsed)
		}

		close(release)
		deadline := time.Now().Add(time.Second)
		for !late.closed.Load() && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		if !late.closed.Load() {
			t.Error("capture that opened after the timeout was not closed")
		}
	})
}
