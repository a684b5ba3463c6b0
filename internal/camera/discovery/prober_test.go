package discovery

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shell-sorter/shellsorter/internal/camera/device"
	"github.com/shell-sorter/shellsorter/internal/camera/identity"
	"github.com/shell-sorter/shellsorter/internal/models"
)

// mockLogger implements the logger interface for testing
type mockLogger struct{}

func (m *mockLogger) Debug(msg string, args ...any) {}
func (m *mockLogger) Info(msg string, args ...any)  {}

type fakeCapture struct {
	w, h   int
	closed bool
}

func (f *fakeCapture) Size() (int, int)                { return f.w, f.h }
func (f *fakeCapture) SetSize(int, int)                {}
func (f *fakeCapture) SetFPS(int)                      {}
func (f *fakeCapture) SetAutofocus(bool)               {}
func (f *fakeCapture) SetFocusPoint(int, int) bool     { return false }
func (f *fakeCapture) ReadJPEG(int) ([]byte, error)    { return nil, device.ErrEmptyFrame }
func (f *fakeCapture) ReadImage() (image.Image, error) { return nil, device.ErrEmptyFrame }
func (f *fakeCapture) Close() error {
	f.closed = true
	return nil
}

type fakeIdentity struct {
	names map[int]string
	hw    map[int]identity.HardwareInfo
}

func (f fakeIdentity) DeviceName(_ context.Context, i int) string { return f.names[i] }
func (f fakeIdentity) HardwareInfo(_ context.Context, i int) identity.HardwareInfo {
	if hw, ok := f.hw[i]; ok {
		return hw
	}
	return identity.HardwareInfo{DevicePath: identity.DevicePath(i)}
}

func testConfig() Config {
	return Config{
		MaxUSBIndex:   10,
		OpenTimeout:   200 * time.Millisecond,
		Concurrency:   4,
		StreamPath:    "/camera",
		DetectTimeout: time.Second,
		DefaultWidth:  800,
		DefaultHeight: 600,
	}
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h)), nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestProbeSingleUSBCamera(t *testing.T) {
	opened := map[int]*fakeCapture{}
	opener := device.OpenerFunc(func(i int) (device.Capture, error) {
		if i != 0 {
			return nil, device.ErrNotOpened
		}
		c := &fakeCapture{w: 640, h: 480}
		opened[i] = c
		return c, nil
	})

	p := NewProber(opener, identity.NoopProbe{}, nil, testConfig(), &mockLogger{})
	cameras := p.Probe(context.Background(), nil, nil)

	if len(cameras) != 1 {
		t.Fatalf("expected 1 camera, got %d", len(cameras))
	}
	c := cameras[0]
	if c.Index != 0 || c.Resolution.Width != 640 || c.Resolution.Height != 480 || c.IsNetworkCamera {
		t.Errorf("unexpected record %+v", c)
	}
	if c.Name != "Camera 0" {
		t.Errorf("name = %q, want fallback name", c.Name)
	}
	if c.HardwareID != "/dev/video0:Camera 0" {
		t.Errorf("hardware id = %q", c.HardwareID)
	}
	if !opened[0].closed {
		t.Error("probe must release the device")
	}
}

func TestProbeUSBHangingDeviceIsSkipped(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	opener := device.OpenerFunc(func(i int) (device.Capture, error) {
		switch i {
		case 1:
			<-block
			return nil, device.ErrNotOpened
		case 2:
			return &fakeCapture{w: 1920, h: 1080}, nil
		default:
			return nil, device.ErrNotOpened
		}
	})

	ids := fakeIdentity{
		names: map[int]string{2: "HD Pro Webcam C920"},
		hw: map[int]identity.HardwareInfo{2: {
			DevicePath: "/dev/video2", VendorID: "046d", ProductID: "082d", SerialNumber: "A1B2",
		}},
	}

	p := NewProber(opener, ids, nil, testConfig(), &mockLogger{})

	start := time.Now()
	cameras := p.ProbeUSB(context.Background())
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("hung device stalled the probe for %s", elapsed)
	}

	if len(cameras) != 1 || cameras[0].Index != 2 {
		t.Fatalf("unexpected cameras %+v", cameras)
	}
	if cameras[0].HardwareID != "046d:082d:A1B2" {
		t.Errorf("hardware id = %q", cameras[0].HardwareID)
	}
	if cameras[0].Name != "HD Pro Webcam C920" {
		t.Errorf("name = %q", cameras[0].Name)
	}
}

func TestProbeNetwork(t *testing.T) {
	frame := jpegBytes(t, 800, 600)
	small := jpegBytes(t, 320, 240)

	mux := http.NewServeMux()
	mux.HandleFunc("/camera", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(frame)
	})
	cam := httptest.NewServer(mux)
	defer cam.Close()

	smallCam := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(small)
	}))
	defer smallCam.Close()

	garbled := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("not really a jpeg"))
	}))
	defer garbled.Close()

	web := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html></html>"))
	}))
	defer web.Close()

	missing := httptest.NewServer(http.NotFoundHandler())
	defer missing.Close()

	host := func(s *httptest.Server) string { return strings.TrimPrefix(s.URL, "http://") }

	hosts := []string{host(missing), host(cam), host(web), host(garbled), host(smallCam)}

	noUSB := device.OpenerFunc(func(int) (device.Capture, error) { return nil, device.ErrNotOpened })
	p := NewProber(noUSB, nil, nil, testConfig(), &mockLogger{})

	var streamed []int
	cameras := p.Probe(context.Background(), hosts, func(c models.CameraRecord) { streamed = append(streamed, c.Index) })

	if len(cameras) != 3 {
		t.Fatalf("expected 3 network cameras, got %d: %+v", len(cameras), cameras)
	}

	tests := []struct {
		index  int
		host   string
		width  int
		height int
	}{
		{1001, host(cam), 800, 600},
		{1003, host(garbled), 800, 600},
		{1004, host(smallCam), 320, 240},
	}

	for i, tt := range tests {
		c := cameras[i]
		if c.Index != tt.index {
			t.Errorf("camera %d: index = %d, want %d", i, c.Index, tt.index)
		}
		if c.Resolution.Width != tt.width || c.Resolution.Height != tt.height {
			t.Errorf("camera %d: resolution = %+v", i, c.Resolution)
		}
		if !c.IsSelected || !c.IsNetworkCamera {
			t.Errorf("camera %d: network cameras must be selected network records", i)
		}
		if c.HardwareID != "network:"+tt.host {
			t.Errorf("camera %d: hardware id = %q", i, c.HardwareID)
		}
		if c.StreamURL != "http://"+tt.host+"/camera" {
			t.Errorf("camera %d: stream url = %q", i, c.StreamURL)
		}
	}

	if len(streamed) != 3 {
		t.Errorf("onFound called %d times", len(streamed))
	}
}

func TestStreamURL(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"esp32cam1.local", "http://esp32cam1.local/camera"},
		{"10.0.0.5:8080", "http://10.0.0.5:8080/camera"},
		{"https://cam.example/", "https://cam.example/camera"},
	}
	for _, tt := range tests {
		if got := StreamURL(tt.host, "/camera"); got != tt.want {
			t.Errorf("StreamURL(%q) = %q, want %q", tt.host, got, tt.want)
		}
	}
}
