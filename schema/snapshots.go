package schema

import "time"

// TabStatus describes where a tab is in its lifecycle.
type TabStatus string

const (
	// TabStatusLoading indicates the first page of a tab is loading.
	TabStatusLoading TabStatus = "loading"
	// TabStatusReady indicates the current page finished loading.
	TabStatusReady TabStatus = "ready"
	// TabStatusNavigating indicates a navigation away from a ready page is in progress.
	TabStatusNavigating TabStatus = "navigating"
	// TabStatusFailed indicates the last load failed. The next navigation leaves this state.
	TabStatusFailed TabStatus = "failed"
	// TabStatusClosed is terminal; closed tabs are removed from the registry.
	TabStatusClosed TabStatus = "closed"
)

// TabSnapshot is a read-only view of tab state for transports.
type TabSnapshot struct {
	ID         TabID      `json:"id"`
	URL        string     `json:"url"`
	Title      string     `json:"title"`
	Status     TabStatus  `json:"status"`
	Active     bool       `json:"active"`
	Generation Generation `json:"generation"`
	LoadError  string     `json:"load_error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}
