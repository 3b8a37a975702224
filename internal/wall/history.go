package wall

import (
	"encoding/json"
	"fmt"
)

// MaxColorHistory is the maximum number of entries kept per entity. When the
// bound is exceeded the oldest entry is evicted from the front.
const MaxColorHistory = 20

// Color is an sRGB paint color.
type Color struct {
	R uint8
	G uint8
	B uint8
}

// Hex returns the color as a "#rrggbb" string.
func (c Color) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// ParseHex parses a "#rrggbb" string into a Color.
func ParseHex(s string) (Color, error) {
	var c Color
	if len(s) != 7 || s[0] != '#' {
		return c, fmt.Errorf("invalid color %q: want #rrggbb", s)
	}
	if _, err := fmt.Sscanf(s, "#%02x%02x%02x", &c.R, &c.G, &c.B); err != nil {
		return c, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return c, nil
}

// MarshalJSON encodes the color as its hex string.
func (c Color) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Hex())
}

// UnmarshalJSON decodes a hex string into the color.
func (c *Color) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseHex(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ColorHistory is a bounded undo/redo stack of colors applied to one entity.
//
// The position cursor points at the currently active entry (-1 when empty).
// Applying a new color while the cursor is not at the end truncates everything
// after the cursor before appending (undo-then-new-edit semantics).
//
// ColorHistory is not internally synchronized; the registry's mutex guards it.
type ColorHistory struct {
	entries  []Color
	position int
}

// NewColorHistory returns an empty history.
func NewColorHistory() *ColorHistory {
	return &ColorHistory{position: -1}
}

// Apply records a new color as the active entry. Applying the color that is
// already active is a no-op so redundant applies do not pollute the history.
func (h *ColorHistory) Apply(c Color) {
	if cur, ok := h.Current(); ok && cur == c {
		return
	}

	// Drop any redo tail before appending.
	h.entries = h.entries[:h.position+1]
	h.entries = append(h.entries, c)
	h.position = len(h.entries) - 1

	// Evict from the front once over the bound.
	if len(h.entries) > MaxColorHistory {
		over := len(h.entries) - MaxColorHistory
		h.entries = h.entries[over:]
		h.position -= over
	}
}

// Undo steps the cursor back one entry. Returns false if there is nothing
// before the cursor to return to.
func (h *ColorHistory) Undo() bool {
	if h.position <= 0 {
		return false
	}
	h.position--
	return true
}

// Redo steps the cursor forward one entry. Returns false if the cursor is
// already at the newest entry.
func (h *ColorHistory) Redo() bool {
	if h.position >= len(h.entries)-1 {
		return false
	}
	h.position++
	return true
}

// Current returns the active entry, or false if the history is empty.
func (h *ColorHistory) Current() (Color, bool) {
	if h.position < 0 || h.position >= len(h.entries) {
		return Color{}, false
	}
	return h.entries[h.position], true
}

// Len returns the number of recorded entries.
func (h *ColorHistory) Len() int { return len(h.entries) }

// Position returns the cursor index (-1 when empty).
func (h *ColorHistory) Position() int { return h.position }

// Colors returns a copy of the recorded entries in order.
func (h *ColorHistory) Colors() []Color {
	out := make([]Color, len(h.entries))
	copy(out, h.entries)
	return out
}

// Clone returns an independent copy of the history.
func (h *ColorHistory) Clone() *ColorHistory {
	return &ColorHistory{entries: h.Colors(), position: h.position}
}
