package core

import "pkt.systems/browserx/schema"

// ComputeBounds returns the content surface rectangle for a window size and chrome layout.
// The menu overlay shifts content right; the sidebar and settings panel take width from
// the right edge. Width and height never go negative.
func ComputeBounds(window schema.Size, layout schema.ShellLayout) schema.Rect {
	m := layout.Metrics()
	return schema.Rect{
		X:      m.OverlayOffsetLeft,
		Y:      m.ChromeHeight,
		Width:  max(0, window.Width-m.SidebarWidth-m.OverlayOffsetLeft-m.OverlayInsetRight),
		Height: max(0, window.Height-m.ChromeHeight),
	}
}
