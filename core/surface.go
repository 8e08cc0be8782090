package core

import (
	"context"
	"encoding/json"

	"pkt.systems/browserx/schema"
)

// SurfaceEventType enumerates events emitted by a content surface.
type SurfaceEventType string

const (
	// SurfaceLoaded fires when the current document finished loading.
	SurfaceLoaded SurfaceEventType = "loaded"
	// SurfaceNavigated fires when the main frame committed a new document.
	SurfaceNavigated SurfaceEventType = "navigated"
	// SurfaceNavigatedInPage fires on history or fragment changes within the document.
	SurfaceNavigatedInPage SurfaceEventType = "navigated-in-page"
	// SurfaceTitleChanged fires when the document title changed.
	SurfaceTitleChanged SurfaceEventType = "title-changed"
	// SurfaceConsoleMessage carries one console line from the page.
	SurfaceConsoleMessage SurfaceEventType = "console-message"
	// SurfaceContextMenu fires when the user opened the context menu over a selection.
	SurfaceContextMenu SurfaceEventType = "context-menu"
	// SurfaceNavigationFailed fires when a load could not complete.
	SurfaceNavigationFailed SurfaceEventType = "navigation-failed"
)

// SurfaceEvent is one event from a content surface. Events of one surface are
// delivered in emission order.
type SurfaceEvent struct {
	Type      SurfaceEventType
	URL       string
	Title     string
	Text      string
	Selection string
	Err       error
}

// SurfaceConfig describes a surface to allocate.
type SurfaceConfig struct {
	TabID  schema.TabID
	Bounds schema.Rect
}

// SurfaceFactory allocates isolated content surfaces.
type SurfaceFactory interface {
	// Create fails with *schema.AllocationError when the host cannot provide a surface.
	Create(ctx context.Context, cfg SurfaceConfig) (Surface, error)
}

// Surface is one isolated renderable web page. Pages get no host bindings; the
// console is their only channel out and ExecuteScript the only channel in.
type Surface interface {
	Load(ctx context.Context, url string) error
	// GoBack, GoForward and Reload are no-ops when the move is unavailable.
	GoBack(ctx context.Context) error
	GoForward(ctx context.Context) error
	Reload(ctx context.Context) error
	// ExecuteScript fails with *schema.ScriptError when the surface is gone or
	// navigated during the call.
	ExecuteScript(ctx context.Context, source string) (json.RawMessage, error)
	InsertCSS(ctx context.Context, id, css string) error
	SetBounds(ctx context.Context, bounds schema.Rect) error
	Show(ctx context.Context) error
	// Events is closed after Close.
	Events() <-chan SurfaceEvent
	Close() error
}
