package manager

import (
	"context"
	"errors"
	"image"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shell-sorter/shellsorter/internal/camera/device"
	"github.com/shell-sorter/shellsorter/internal/config"
	"github.com/shell-sorter/shellsorter/internal/metrics"
	"github.com/shell-sorter/shellsorter/internal/models"
)

type mockLogger struct{}

func (m *mockLogger) Debug(msg string, args ...any)            {}
func (m *mockLogger) Info(msg string, args ...any)             {}
func (m *mockLogger) Warn(msg string, args ...any)             {}
func (m *mockLogger) Error(msg string, err error, args ...any) {}

// fakeCapture serves frames until failAfter reads, then errors forever
type fakeCapture struct {
	mu        sync.Mutex
	reads     int
	failAfter int
	closed    bool
	autofocus []bool
	focus     *image.Point
}

func (f *fakeCapture) Size() (int, int) { return 640, 480 }
func (f *fakeCapture) SetSize(int, int) {}
func (f *fakeCapture) SetFPS(int)       {}

func (f *fakeCapture) SetAutofocus(enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.autofocus = append(f.autofocus, enabled)
}

func (f *fakeCapture) SetFocusPoint(x, y int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.focus = &image.Point{X: x, Y: y}
	return true
}

func (f *fakeCapture) ReadJPEG(int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.failAfter >= 0 && f.reads > f.failAfter {
		return nil, device.ErrEmptyFrame
	}
	return []byte{0xff, 0xd8, byte(f.reads)}, nil
}

func (f *fakeCapture) ReadImage() (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, 640, 480)), nil
}

func (f *fakeCapture) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeCapture) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakeOpener hands out a fresh fakeCapture per Open and remembers them
type fakeOpener struct {
	mu        sync.Mutex
	failAfter int
	opened    []*fakeCapture
	err       error
}

func (o *fakeOpener) Open(int) (device.Capture, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return nil, o.err
	}
	c := &fakeCapture{failAfter: o.failAfter}
	o.opened = append(o.opened, c)
	return c, nil
}

func (o *fakeOpener) captures() []*fakeCapture {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*fakeCapture(nil), o.opened...)
}

type fakeProber struct {
	records []models.CameraRecord
	hosts   []string
}

// Probe gives up before reporting anything once ctx is done, like the real
// prober does when its worker pool is cancelled.
func (p *fakeProber) Probe(ctx context.Context, hosts []string, onFound func(models.CameraRecord)) []models.CameraRecord {
	p.hosts = hosts
	if ctx.Err() != nil {
		return nil
	}
	for _, c := range p.records {
		if onFound != nil {
			onFound(c)
		}
	}
	return p.records
}

type fakeCapturer struct {
	data map[int][]byte
}

func (f *fakeCapturer) Capture(_ context.Context, c models.CameraRecord) []byte {
	return f.data[c.Index]
}

type fakeProcessor struct {
	err error
}

func (f *fakeProcessor) Process(data []byte, _ models.CameraRecord) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return append([]byte("processed:"), data...), nil
}

func testCameraConfig() config.CameraConfig {
	cfg := config.Default().Camera
	cfg.Warmup = 0
	cfg.StreamFPS = 200
	cfg.MaxReadFailures = 3
	cfg.ReadRetryDelay = time.Millisecond
	cfg.OpenTimeout = time.Second
	cfg.StopJoinTimeout = time.Second
	cfg.AutofocusSettle = 0
	cfg.NetworkPollInterval = 5 * time.Millisecond
	cfg.NetworkRetryDelay = 5 * time.Millisecond
	return cfg
}

type fixture struct {
	m        *Manager
	opener   *fakeOpener
	prober   *fakeProber
	capturer *fakeCapturer
	store    *config.UserStore
}

func newFixture(t *testing.T, records ...models.CameraRecord) *fixture {
	t.Helper()
	f := &fixture{
		opener:   &fakeOpener{failAfter: -1},
		prober:   &fakeProber{records: records},
		capturer: &fakeCapturer{data: map[int][]byte{}},
		store:    config.NewUserStore(filepath.Join(t.TempDir(), "shell-sorter.json"), "esp32cam1.local", &mockLogger{}),
	}
	f.m = New(testCameraConfig(), Deps{
		Opener:   f.opener,
		Prober:   f.prober,
		Capturer: f.capturer,
		Store:    f.store,
		Metrics:  metrics.New(),
	}, &mockLogger{})
	t.Cleanup(f.m.Cleanup)
	return f
}

func usbCamera(index int, hwid string) models.CameraRecord {
	return models.CameraRecord{
		Index:      index,
		Name:       "USB Camera",
		Resolution: models.Resolution{Width: 640, Height: 480},
		IsSelected: true,
		HardwareID: hwid,
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestDetectReplacesRegistry(t *testing.T) {
	f := newFixture(t, usbCamera(0, "046d:0825:ABC"), usbCamera(1, "046d:0825:DEF"))

	if got := f.m.Detect(context.Background()); len(got) != 2 {
		t.Fatalf("Detect() returned %d cameras, want 2", len(got))
	}

	f.prober.records = []models.CameraRecord{usbCamera(1, "046d:0825:DEF")}
	got := f.m.Detect(context.Background())
	if len(got) != 1 || got[0].Index != 1 {
		t.Fatalf("Detect() = %+v, want only camera 1", got)
	}
	if _, ok := f.m.Camera(0); ok {
		t.Error("stale camera 0 should have been discarded")
	}
}

func TestDetectAddsControllerHostname(t *testing.T) {
	f := newFixture(t)
	f.m.Detect(context.Background())

	want := []string{"esp32cam1.local", "shell-sorter-controller.local"}
	if len(f.prober.hosts) != len(want) {
		t.Fatalf("hosts = %v, want %v", f.prober.hosts, want)
	}
	for i := range want {
		if f.prober.hosts[i] != want[i] {
			t.Errorf("hosts[%d] = %q, want %q", i, f.prober.hosts[i], want[i])
		}
	}
}

func TestDetectWithProgressReportsEachCamera(t *testing.T) {
	f := newFixture(t, usbCamera(0, "a:b:c"), models.CameraRecord{
		Index: 1000, Name: "ESPHome Camera (cam.local)", IsNetworkCamera: true,
		Hostname: "cam.local", HardwareID: "network:cam.local",
	})

	var seen []int
	f.m.DetectWithProgress(context.Background(), func(c models.CameraRecord) {
		seen = append(seen, c.Index)
	})
	if len(seen) != 2 || seen[0] != 0 || seen[1] != 1000 {
		t.Errorf("progress order = %v, want [0 1000]", seen)
	}
}

func TestCancelledDetectKeepsRegistry(t *testing.T) {
	f := newFixture(t, usbCamera(0, "a:b:c"), usbCamera(1, "a:b:d"))
	f.m.Detect(context.Background())

	if !f.m.Start(context.Background(), 0) {
		t.Fatal("Start() = false")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got := f.m.Detect(ctx)
	if len(got) != 2 {
		t.Errorf("cancelled Detect() returned %d cameras, want the 2 already known", len(got))
	}

	cam, ok := f.m.Camera(0)
	if !ok {
		t.Fatal("camera 0 dropped by cancelled detection")
	}
	if !cam.IsActive {
		t.Error("camera 0 should still be active")
	}
	if f.m.LatestFrame(0) == nil {
		t.Error("LatestFrame() = nil, pump was stopped")
	}
	if caps := f.opener.captures(); len(caps) != 1 || caps[0].isClosed() {
		t.Error("running device should not have been released")
	}
}

func TestSelect(t *testing.T) {
	f := newFixture(t, usbCamera(0, "a:b:0"), usbCamera(1, "a:b:1"), usbCamera(2, "a:b:2"))
	f.m.Detect(context.Background())

	tests := []struct {
		name     string
		indices  []int
		want     bool
		selected []int
	}{
		{"subset", []int{0, 2}, true, []int{0, 2}},
		{"unknown index leaves selection untouched", []int{1, 99}, false, []int{0, 2}},
		{"empty deselects all", []int{}, true, []int{}},
		{"single", []int{1}, true, []int{1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.m.Select(tt.indices); got != tt.want {
				t.Fatalf("Select(%v) = %v, want %v", tt.indices, got, tt.want)
			}
			sel := f.m.Selected()
			if len(sel) != len(tt.selected) {
				t.Fatalf("selected = %d cameras, want %v", len(sel), tt.selected)
			}
			for i, c := range sel {
				if c.Index != tt.selected[i] {
					t.Errorf("selected[%d] = %d, want %d", i, c.Index, tt.selected[i])
				}
			}
		})
	}
}

func TestStartStopUSB(t *testing.T) {
	f := newFixture(t, usbCamera(0, "a:b:c"))
	f.m.Detect(context.Background())

	if !f.m.Start(context.Background(), 0) {
		t.Fatal("Start() = false")
	}
	cam, _ := f.m.Camera(0)
	if !cam.IsActive {
		t.Error("camera should be active after Start")
	}
	if f.m.LatestFrame(0) == nil {
		t.Error("LatestFrame() = nil after Start")
	}

	f.m.Stop(0)
	if frame := f.m.LatestFrame(0); frame != nil {
		t.Errorf("LatestFrame() after Stop = %v, want nil", frame)
	}
	cam, _ = f.m.Camera(0)
	if cam.IsActive {
		t.Error("camera should be inactive after Stop")
	}
	if caps := f.opener.captures(); len(caps) != 1 || !caps[0].isClosed() {
		t.Error("device should be released after Stop")
	}
}

func TestStartTwiceStopsFirstPump(t *testing.T) {
	f := newFixture(t, usbCamera(0, "a:b:c"))
	f.m.Detect(context.Background())

	if !f.m.Start(context.Background(), 0) || !f.m.Start(context.Background(), 0) {
		t.Fatal("Start() = false")
	}

	caps := f.opener.captures()
	if len(caps) != 2 {
		t.Fatalf("opened %d devices, want 2", len(caps))
	}
	if !caps[0].isClosed() {
		t.Error("first pump's device should be closed by the restart")
	}
	if caps[1].isClosed() {
		t.Error("second pump's device should still be open")
	}
	if n := len(f.m.activeIndices()); n != 1 {
		t.Errorf("active pumps = %d, want 1", n)
	}
}

func TestStartFailures(t *testing.T) {
	t.Run("unknown index", func(t *testing.T) {
		f := newFixture(t)
		if f.m.Start(context.Background(), 5) {
			t.Error("Start() on unknown camera = true")
		}
	})

	t.Run("open error", func(t *testing.T) {
		f := newFixture(t, usbCamera(0, "a:b:c"))
		f.m.Detect(context.Background())
		f.opener.err = device.ErrNotOpened
		if f.m.Start(context.Background(), 0) {
			t.Error("Start() = true for a device that cannot open")
		}
	})

	t.Run("no initial frame", func(t *testing.T) {
		f := newFixture(t, usbCamera(0, "a:b:c"))
		f.m.Detect(context.Background())
		f.opener.failAfter = 0
		if f.m.Start(context.Background(), 0) {
			t.Fatal("Start() = true for a device that never delivers frames")
		}
		caps := f.opener.captures()
		if len(caps) != 1 || !caps[0].isClosed() {
			t.Error("device should be released after failed frame test")
		}
		if caps[0].reads != 5 {
			t.Errorf("test reads = %d, want 5", caps[0].reads)
		}
	})
}

func TestUSBFailureMarksCameraInactive(t *testing.T) {
	f := newFixture(t, usbCamera(0, "a:b:c"))
	f.m.Detect(context.Background())
	f.opener.failAfter = 2

	if !f.m.Start(context.Background(), 0) {
		t.Fatal("Start() = false")
	}

	eventually(t, "camera to go inactive", func() bool {
		cam, _ := f.m.Camera(0)
		return !cam.IsActive
	})

	if f.m.LatestFrame(0) != nil {
		t.Error("LatestFrame() should be nil after the pump gave up")
	}
	c := f.opener.captures()[0]
	eventually(t, "device release", c.isClosed)

	c.mu.Lock()
	reads := c.reads
	c.mu.Unlock()
	// 1 test read + 1 good pump read, then MaxReadFailures failures
	if reads != 2+3 {
		t.Errorf("reads = %d, want 5", reads)
	}

	// a fresh start works after self-termination
	f.opener.failAfter = -1
	if !f.m.Start(context.Background(), 0) {
		t.Error("restart after failure = false")
	}
}

func TestNetworkStream(t *testing.T) {
	frame := []byte{0xff, 0xd8, 0xff, 0xe0, 1, 2, 3}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(frame)
	}))
	defer server.Close()

	f := newFixture(t, models.CameraRecord{
		Index: 1000, Name: "ESPHome Camera (cam.local)", IsNetworkCamera: true,
		StreamURL: server.URL, Hostname: "cam.local", HardwareID: "network:cam.local",
	})
	f.m.Detect(context.Background())

	if !f.m.Start(context.Background(), 1000) {
		t.Fatal("Start() = false")
	}
	eventually(t, "network frame", func() bool { return f.m.LatestFrame(1000) != nil })

	if got := f.m.LatestFrame(1000); string(got) != string(frame) {
		t.Errorf("LatestFrame() = %v, want raw server bytes", got)
	}

	f.m.StopAll()
	if f.m.LatestFrame(1000) != nil {
		t.Error("StopAll should clear network frames")
	}
}

func TestStartSelectedReportsPartialSuccess(t *testing.T) {
	f := newFixture(t, usbCamera(0, "a:b:0"), models.CameraRecord{
		Index: 1000, Name: "net", IsNetworkCamera: true, IsSelected: true,
		StreamURL: "http://127.0.0.1:1/camera", HardwareID: "network:x",
	})
	f.m.Detect(context.Background())
	f.opener.err = errors.New("busy")

	started, failed := f.m.StartSelected(context.Background())
	if len(started) != 1 || started[0] != 1000 {
		t.Errorf("started = %v, want [1000]", started)
	}
	if len(failed) != 1 || failed[0] != 0 {
		t.Errorf("failed = %v, want [0]", failed)
	}
}

func TestRegionRoundTrip(t *testing.T) {
	f := newFixture(t, usbCamera(0, "a:b:c"))
	f.m.Detect(context.Background())

	if !f.m.SetRegion(0, 10, 20, 30, 40) {
		t.Fatal("SetRegion() = false")
	}
	stored, _ := f.store.Camera("a:b:c")
	if stored.RegionX == nil || *stored.RegionX != 10 || *stored.RegionHeight != 40 {
		t.Errorf("stored region = %+v", stored)
	}

	if !f.m.ClearRegion(0) {
		t.Fatal("ClearRegion() = false")
	}
	cam, _ := f.m.Camera(0)
	if cam.Region != nil {
		t.Errorf("Region = %+v, want nil", cam.Region)
	}
	stored, _ = f.store.Camera("a:b:c")
	if stored.RegionX != nil || stored.RegionY != nil || stored.RegionWidth != nil || stored.RegionHeight != nil {
		t.Errorf("stored region fields not cleared: %+v", stored)
	}
}

func TestSetRegionRejectsInvalid(t *testing.T) {
	f := newFixture(t, usbCamera(0, "a:b:c"))
	f.m.Detect(context.Background())

	tests := []struct {
		name              string
		index, x, y, w, h int
	}{
		{"unknown camera", 9, 0, 0, 10, 10},
		{"zero width", 0, 0, 0, 0, 10},
		{"negative origin", 0, -1, 0, 10, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if f.m.SetRegion(tt.index, tt.x, tt.y, tt.w, tt.h) {
				t.Error("SetRegion() = true")
			}
		})
	}
}

func TestSetViewType(t *testing.T) {
	f := newFixture(t, usbCamera(0, "a:b:c"))
	f.m.Detect(context.Background())

	tail := models.ViewTail
	if !f.m.SetViewType(0, &tail) {
		t.Fatal("SetViewType(tail) = false")
	}
	stored, _ := f.store.Camera("a:b:c")
	if stored.ViewType == nil || *stored.ViewType != "tail" {
		t.Errorf("stored view type = %v", stored.ViewType)
	}

	bogus := models.ViewType("front")
	if f.m.SetViewType(0, &bogus) {
		t.Error("SetViewType(front) = true")
	}

	if !f.m.SetViewType(0, nil) {
		t.Fatal("SetViewType(nil) = false")
	}
	cam, _ := f.m.Camera(0)
	if cam.ViewType != nil {
		t.Errorf("ViewType = %v, want nil", *cam.ViewType)
	}
}

func TestStoredConfigSurvivesReindex(t *testing.T) {
	f := newFixture(t, usbCamera(0, "046d:0825:SERIAL"))
	f.m.Detect(context.Background())
	f.m.SetRegion(0, 1, 2, 3, 4)

	// same camera re-enumerated at another index
	f.prober.records = []models.CameraRecord{usbCamera(3, "046d:0825:SERIAL")}
	f.m.Detect(context.Background())

	cam, ok := f.m.Camera(3)
	if !ok || cam.Region == nil || *cam.Region != (models.Region{X: 1, Y: 2, Width: 3, Height: 4}) {
		t.Errorf("region not restored by hardware id: %+v", cam.Region)
	}
}

func TestLegacyConfigMigration(t *testing.T) {
	f := newFixture(t, usbCamera(0, "/dev/video0:USB Camera"))

	side := "side"
	x, y, w, h := 5, 6, 7, 8
	if err := f.store.SetCamera("USB Camera", config.CameraSettings{
		ViewType: &side, RegionX: &x, RegionY: &y, RegionWidth: &w, RegionHeight: &h,
	}); err != nil {
		t.Fatal(err)
	}

	f.m.Detect(context.Background())

	cam, _ := f.m.Camera(0)
	if cam.ViewType == nil || *cam.ViewType != models.ViewSide {
		t.Errorf("view type not migrated: %v", cam.ViewType)
	}
	if cam.Region == nil || cam.Region.Width != 7 {
		t.Errorf("region not migrated: %+v", cam.Region)
	}

	if _, ok := f.store.Camera("USB Camera"); ok {
		t.Error("legacy name key should be removed after migration")
	}
	if migrated, ok := f.store.Camera("/dev/video0:USB Camera"); !ok || migrated.IsZero() {
		t.Error("settings should be stored under the hardware id")
	}
}

func TestLegacyConfigIgnoredWhenHardwareEntryExists(t *testing.T) {
	f := newFixture(t, usbCamera(0, "/dev/video0:USB Camera"))

	if err := f.store.SetCamera("/dev/video0:USB Camera", config.CameraSettings{}); err != nil {
		t.Fatal(err)
	}
	side := "side"
	if err := f.store.SetCamera("USB Camera", config.CameraSettings{ViewType: &side}); err != nil {
		t.Fatal(err)
	}

	f.m.Detect(context.Background())

	cam, _ := f.m.Camera(0)
	if cam.ViewType != nil {
		t.Errorf("view type = %v, want nil from the hardware id entry", *cam.ViewType)
	}
	if _, ok := f.store.Camera("USB Camera"); !ok {
		t.Error("legacy entry should be left alone when no migration happens")
	}
	if stored, _ := f.store.Camera("/dev/video0:USB Camera"); !stored.IsZero() {
		t.Errorf("hardware id entry overwritten: %+v", stored)
	}
}

func TestRemoveDeletesStoredConfig(t *testing.T) {
	f := newFixture(t, usbCamera(0, "a:b:c"), usbCamera(1, "a:b:d"))
	f.m.Detect(context.Background())
	f.m.SetRegion(0, 1, 1, 10, 10)
	f.m.SetRegion(1, 1, 1, 10, 10)
	f.m.Start(context.Background(), 0)

	if !f.m.Remove(0) {
		t.Fatal("Remove() = false")
	}
	if f.m.Remove(0) {
		t.Error("second Remove() = true")
	}
	if _, ok := f.store.Camera("a:b:c"); ok {
		t.Error("config for removed camera still stored")
	}
	if _, ok := f.store.Camera("a:b:d"); !ok {
		t.Error("config for other camera should survive")
	}
	if !f.opener.captures()[0].isClosed() {
		t.Error("removed camera's device should be released")
	}
}

func TestClearAllAndReset(t *testing.T) {
	f := newFixture(t, usbCamera(0, "a:b:c"))
	f.m.Detect(context.Background())
	f.m.SetRegion(0, 1, 1, 10, 10)
	if err := f.store.SetHostnames([]string{"other.local"}); err != nil {
		t.Fatal(err)
	}

	f.m.ClearAll()
	if len(f.m.List()) != 0 {
		t.Error("ClearAll should empty the registry")
	}
	if _, ok := f.store.Camera("a:b:c"); ok {
		t.Error("ClearAll should delete stored camera configs")
	}
	if hosts := f.store.Hostnames(); len(hosts) != 1 || hosts[0] != "other.local" {
		t.Errorf("ClearAll should keep hostnames, got %v", hosts)
	}

	f.m.ResetToDefaults()
	if hosts := f.store.Hostnames(); len(hosts) != 1 || hosts[0] != "esp32cam1.local" {
		t.Errorf("hostnames after reset = %v", hosts)
	}
}

func TestSaveConfig(t *testing.T) {
	f := newFixture(t, usbCamera(0, "a:b:c"))
	f.m.Detect(context.Background())

	f.m.mu.Lock()
	tail := models.ViewTail
	f.m.cameras[0].ViewType = &tail
	f.m.mu.Unlock()

	if !f.m.SaveConfig() {
		t.Fatal("SaveConfig() = false")
	}
	stored, _ := f.store.Camera("a:b:c")
	if stored.ViewType == nil || *stored.ViewType != "tail" {
		t.Errorf("stored view type = %v", stored.ViewType)
	}
}

func TestTriggerAutofocus(t *testing.T) {
	f := newFixture(t, usbCamera(0, "a:b:c"), models.CameraRecord{
		Index: 1000, IsNetworkCamera: true, HardwareID: "network:x",
	})
	f.m.Detect(context.Background())
	f.m.SetRegion(0, 100, 100, 200, 100)

	if f.m.TriggerAutofocus(context.Background(), 1000) {
		t.Error("autofocus on network camera = true")
	}
	if f.m.TriggerAutofocus(context.Background(), 7) {
		t.Error("autofocus on unknown camera = true")
	}

	if !f.m.TriggerAutofocus(context.Background(), 0) {
		t.Fatal("TriggerAutofocus() = false")
	}
	c := f.opener.captures()[0]
	if !c.isClosed() {
		t.Error("temporary device should be closed")
	}
	if len(c.autofocus) != 2 || c.autofocus[0] || !c.autofocus[1] {
		t.Errorf("autofocus toggles = %v, want [false true]", c.autofocus)
	}
	if c.focus == nil || *c.focus != image.Pt(200, 150) {
		t.Errorf("focus point = %v, want (200,150)", c.focus)
	}
}

func TestTriggerAutofocusUsesActiveDevice(t *testing.T) {
	f := newFixture(t, usbCamera(0, "a:b:c"))
	f.m.Detect(context.Background())
	f.m.Start(context.Background(), 0)

	if !f.m.TriggerAutofocus(context.Background(), 0) {
		t.Fatal("TriggerAutofocus() = false")
	}
	if n := len(f.opener.captures()); n != 1 {
		t.Errorf("opened %d devices, want the streaming one reused", n)
	}
}

func TestCaptureOperations(t *testing.T) {
	f := newFixture(t, usbCamera(0, "a:b:0"), usbCamera(1, "a:b:1"))
	f.m.Detect(context.Background())
	f.capturer.data[0] = []byte("still-0")

	if got := f.m.CaptureStill(context.Background(), 0); string(got) != "still-0" {
		t.Errorf("CaptureStill() = %q", got)
	}
	if got := f.m.CaptureStill(context.Background(), 9); got != nil {
		t.Error("CaptureStill() on unknown camera should be nil")
	}

	results := f.m.CaptureSelected(context.Background())
	if len(results) != 2 || results[1] != nil || string(results[0]) != "still-0" {
		t.Errorf("CaptureSelected() = %v", results)
	}

	if got := f.m.ProcessedCapture(context.Background(), 0); string(got) != "still-0" {
		t.Errorf("ProcessedCapture() without processor = %q", got)
	}

	f.m.processor = &fakeProcessor{}
	if got := f.m.ProcessedCapture(context.Background(), 0); string(got) != "processed:still-0" {
		t.Errorf("ProcessedCapture() = %q", got)
	}

	f.m.processor = &fakeProcessor{err: errors.New("no circles")}
	if got := f.m.ProcessedCapture(context.Background(), 0); string(got) != "still-0" {
		t.Errorf("ProcessedCapture() fallback = %q", got)
	}
}

func TestSearch(t *testing.T) {
	f := newFixture(t,
		models.CameraRecord{Index: 0, Name: "HD Pro Webcam C920", HardwareID: "046d:082d:AAA"},
		models.CameraRecord{Index: 1000, Name: "ESPHome Camera (esp32cam1.local)", Hostname: "esp32cam1.local", HardwareID: "network:esp32cam1.local", IsNetworkCamera: true},
	)
	f.m.Detect(context.Background())

	tests := []struct {
		query string
		first int
		count int
	}{
		{"c920", 0, 1},
		{"esp32", 1000, 1},
		{"", 0, 2},
		{"zzzzzz", -1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got := f.m.Search(tt.query, 10)
			if len(got) != tt.count {
				t.Fatalf("Search(%q) returned %d results, want %d", tt.query, len(got), tt.count)
			}
			if tt.count > 0 && got[0].Camera.Index != tt.first {
				t.Errorf("first result = %d, want %d", got[0].Camera.Index, tt.first)
			}
		})
	}
}

func TestCleanup(t *testing.T) {
	f := newFixture(t, usbCamera(0, "a:b:0"), usbCamera(1, "a:b:1"))
	f.m.Detect(context.Background())
	f.m.StartSelected(context.Background())

	f.m.Cleanup()

	if len(f.m.List()) != 0 {
		t.Error("registry should be empty after Cleanup")
	}
	for i, c := range f.opener.captures() {
		if !c.isClosed() {
			t.Errorf("device %d not released", i)
		}
	}
	if f.m.LatestFrame(0) != nil {
		t.Error("frames should be cleared after Cleanup")
	}
}

func TestStartupAutoStart(t *testing.T) {
	f := newFixture(t, usbCamera(0, "a:b:c"))
	if err := f.store.Update(func(uc *config.UserConfig) {
		uc.AutoDetectCameras = true
		uc.AutoStartCameras = true
	}); err != nil {
		t.Fatal(err)
	}

	f.m.Startup(context.Background())

	cam, ok := f.m.Camera(0)
	if !ok || !cam.IsActive {
		t.Error("camera should be detected and started on startup")
	}
}
