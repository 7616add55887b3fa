package chat

import "sync"

// Mode is the panel shown on a narrow viewport.
type Mode int

const (
	ModeThreads Mode = iota
	ModeConversation
)

func (m Mode) String() string {
	switch m {
	case ModeThreads:
		return "threads"
	case ModeConversation:
		return "conversation"
	default:
		return "unknown"
	}
}

// Panels lists which panels render.
type Panels struct {
	Threads      bool
	Conversation bool
}

// ViewCoordinator decides which panel is visible and holds transient UI
// state that does not survive navigation. The state lives only as long as
// the mounted view.
type ViewCoordinator struct {
	mu           sync.Mutex
	breakpoint   int
	width        int
	mode         Mode
	route        string
	filter       string
	dropdownOpen bool

	// pendingLink holds a deep-link switch that landed before the width
	// was known.
	pendingLink bool
}

func NewViewCoordinator(breakpoint int) *ViewCoordinator {
	if breakpoint <= 0 {
		breakpoint = DefaultNarrowWidth
	}
	return &ViewCoordinator{breakpoint: breakpoint}
}

// Resize records the viewport width. A width of zero means unknown and is
// treated as wide. The first known width settles a deep-link switch left
// pending by InitialLoad.
func (v *ViewCoordinator) Resize(width int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.width = width
	if v.pendingLink && width > 0 {
		v.pendingLink = false
		if v.narrow() {
			v.mode = ModeConversation
		}
	}
}

func (v *ViewCoordinator) Narrow() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.narrow()
}

func (v *ViewCoordinator) narrow() bool {
	return v.width > 0 && v.width < v.breakpoint
}

func (v *ViewCoordinator) Mode() Mode {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.mode
}

// Mount starts a fresh view in thread-list mode.
func (v *ViewCoordinator) Mount() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.mode = ModeThreads
	v.pendingLink = false
	v.clearTransient()
}

// InitialLoad runs once the first thread list is in. A deep-linked view on
// a narrow viewport opens straight into the conversation. With no width
// yet the decision waits for the first Resize.
func (v *ViewCoordinator) InitialLoad(deepLinked bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !deepLinked {
		return
	}
	if v.width == 0 {
		v.pendingLink = true
		return
	}
	if v.narrow() {
		v.mode = ModeConversation
	}
}

func (v *ViewCoordinator) SelectThread() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pendingLink = false
	v.mode = ModeConversation
}

func (v *ViewCoordinator) Back() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pendingLink = false
	v.mode = ModeThreads
}

// Unmount returns to the initial state.
func (v *ViewCoordinator) Unmount() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.mode = ModeThreads
	v.route = ""
	v.pendingLink = false
	v.clearTransient()
}

// Navigate records a route change. Any change clears the filter and closes
// open dropdowns.
func (v *ViewCoordinator) Navigate(route string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if route == v.route {
		return
	}
	v.route = route
	v.clearTransient()
}

func (v *ViewCoordinator) Route() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.route
}

func (v *ViewCoordinator) SetFilter(text string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.filter = text
}

func (v *ViewCoordinator) Filter() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.filter
}

func (v *ViewCoordinator) ToggleDropdown() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.dropdownOpen = !v.dropdownOpen
}

func (v *ViewCoordinator) DropdownOpen() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.dropdownOpen
}

// Panels returns both panels on a wide viewport, the active one otherwise.
func (v *ViewCoordinator) Panels() Panels {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.narrow() {
		return Panels{Threads: true, Conversation: true}
	}
	return Panels{
		Threads:      v.mode == ModeThreads,
		Conversation: v.mode == ModeConversation,
	}
}

func (v *ViewCoordinator) clearTransient() {
	v.filter = ""
	v.dropdownOpen = false
}
