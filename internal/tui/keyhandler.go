package tui

import (
	"strconv"
	"time"
	"unicode"
)

const keyTimeout = 500 * time.Millisecond

// Actions produced by VimKeyState.
const (
	actionPending         = "pending"
	actionMoveDown        = "move_down"
	actionMoveUp          = "move_up"
	actionGoTop           = "go_top"
	actionGoBottom        = "go_bottom"
	actionNextPane        = "next_pane"
	actionMonitorSelected = "monitor_selected"
	actionMonitorAll      = "monitor_all"
	actionStop            = "stop"
	actionRediscover      = "rediscover"
	actionBrowse          = "browse"
	actionSearchStart     = "search_start"
	actionSearchNext      = "search_next"
	actionSearchPrev      = "search_prev"
	actionYank            = "yank"
	actionExport          = "export"
	actionToggleCompact   = "toggle_compact"
	actionToggleTimestamp = "toggle_timestamp"
	actionToggleHelp      = "toggle_help"
	actionResizeLeft      = "resize_left"
	actionResizeRight     = "resize_right"
	actionQuit            = "quit"
)

// VimKeyState tracks vim-style key sequences and numeric prefixes
type VimKeyState struct {
	pendingKeys   string
	numericPrefix int
	lastKeyTime   time.Time
	now           func() time.Time
}

// VimKeyResult represents the result of processing a key
type VimKeyResult struct {
	Action string // The action to perform (e.g., "move_down", "go_top")
	Count  int    // Numeric count (e.g., 5 for "5j")
}

// NewVimKeyState creates a new vim key state tracker
func NewVimKeyState() VimKeyState {
	return VimKeyState{now: time.Now}
}

// ProcessKey processes a key press and returns the action to take
func (v *VimKeyState) ProcessKey(key string) VimKeyResult {
	now := v.now()

	// Reset state if too much time has passed
	if now.Sub(v.lastKeyTime) > keyTimeout {
		v.Reset()
	}
	v.lastKeyTime = now

	if len(key) == 1 {
		r := rune(key[0])
		if unicode.IsDigit(r) && (v.numericPrefix > 0 || r != '0') {
			v.numericPrefix = v.numericPrefix*10 + int(r-'0')
			return VimKeyResult{Action: actionPending}
		}
	}

	v.pendingKeys += key

	if action := v.matchSequence(); action != "" {
		count := v.numericPrefix
		if count == 0 {
			count = 1
		}
		v.Reset()
		return VimKeyResult{Action: action, Count: count}
	}

	if v.pendingKeys == "g" {
		return VimKeyResult{Action: actionPending}
	}

	v.Reset()
	return VimKeyResult{}
}

func (v *VimKeyState) matchSequence() string {
	switch v.pendingKeys {
	// Navigation
	case "j", "down":
		return actionMoveDown
	case "k", "up":
		return actionMoveUp
	case "gg", "home":
		return actionGoTop
	case "G", "end":
		return actionGoBottom
	case "tab", "shift+tab":
		return actionNextPane

	// Monitoring
	case "enter":
		return actionMonitorSelected
	case "a":
		return actionMonitorAll
	case "x":
		return actionStop
	case "r":
		return actionRediscover
	case "b":
		return actionBrowse

	// Search
	case "/":
		return actionSearchStart
	case "n":
		return actionSearchNext
	case "N":
		return actionSearchPrev

	// Actions
	case "y":
		return actionYank
	case "e":
		return actionExport

	// View
	case "t":
		return actionToggleCompact
	case "T":
		return actionToggleTimestamp
	case "?":
		return actionToggleHelp
	case "H":
		return actionResizeLeft
	case "L":
		return actionResizeRight

	case "q", "ctrl+c":
		return actionQuit
	}
	return ""
}

// Reset clears the key state
func (v *VimKeyState) Reset() {
	v.pendingKeys = ""
	v.numericPrefix = 0
}

// Pending returns the keys typed so far for display, including any count.
func (v *VimKeyState) Pending() string {
	if v.numericPrefix == 0 {
		return v.pendingKeys
	}
	return strconv.Itoa(v.numericPrefix) + v.pendingKeys
}
