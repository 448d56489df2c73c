package reconcile

import "sync"

// WindowName is the shared name for the authorization popup. One live popup
// per browser tab: opening a new authorization URL navigates the existing
// window instead of spawning another.
const WindowName = "oakline-connect-auth"

// Default popup dimensions for the authorization window.
const (
	DefaultWindowWidth  = 600
	DefaultWindowHeight = 700
)

// WindowManager controls the authorization popup. Open returns false when the
// window could not be opened (popup blocked); callers surface that to the user
// rather than dropping it. Close is idempotent and safe on a never-opened
// window. The browser-backed implementation lives client-side; server code and
// tests use WindowRecorder.
type WindowManager interface {
	Open(url string) bool
	Close()
}

// Geometry is a popup placement in screen coordinates.
type Geometry struct {
	Left   int
	Top    int
	Width  int
	Height int
}

// CenteredGeometry computes a centered popup placement for the given screen,
// clamping the window to the screen when it is smaller than the defaults.
func CenteredGeometry(screenWidth, screenHeight int) Geometry {
	width := DefaultWindowWidth
	if screenWidth > 0 && width > screenWidth {
		width = screenWidth
	}
	height := DefaultWindowHeight
	if screenHeight > 0 && height > screenHeight {
		height = screenHeight
	}
	g := Geometry{Width: width, Height: height}
	if screenWidth > width {
		g.Left = (screenWidth - width) / 2
	}
	if screenHeight > height {
		g.Top = (screenHeight - height) / 2
	}
	return g
}

// WindowRecorder is a recording WindowManager for tests and headless
// embedders. Set Blocked to simulate a popup blocker.
type WindowRecorder struct {
	mu      sync.Mutex
	Blocked bool
	opened  []string
	closes  int
}

func (r *WindowRecorder) Open(url string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Blocked {
		return false
	}
	r.opened = append(r.opened, url)
	return true
}

func (r *WindowRecorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closes++
}

// OpenedURLs returns every URL passed to Open, in order.
func (r *WindowRecorder) OpenedURLs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.opened...)
}

// CloseCount returns how many times Close was called.
func (r *WindowRecorder) CloseCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closes
}

// noopWindow is used when no WindowManager is configured.
type noopWindow struct{}

func (noopWindow) Open(string) bool { return true }
func (noopWindow) Close()           {}
