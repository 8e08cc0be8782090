package schema

// TabEventType describes tab lifecycle or state changes.
type TabEventType string

const (
	// TabEventCreated indicates a tab was created.
	TabEventCreated TabEventType = "created"
	// TabEventClosed indicates a tab was closed.
	TabEventClosed TabEventType = "closed"
	// TabEventActivated indicates a tab became active.
	TabEventActivated TabEventType = "activated"
	// TabEventUpdated indicates url, title, or status changed.
	TabEventUpdated TabEventType = "updated"
)

// TabEvent notifies the shell about tab strip and address bar changes.
type TabEvent struct {
	Type      TabEventType `json:"type"`
	Tab       TabSnapshot  `json:"tab"`
	ActiveTab TabID        `json:"active_tab"`
}

// LayoutEvent notifies the shell that chrome geometry was recomputed.
type LayoutEvent struct {
	Layout    ShellLayout   `json:"layout"`
	Metrics   LayoutMetrics `json:"metrics"`
	Window    Size          `json:"window"`
	Bounds    Rect          `json:"bounds"`
	ActiveTab TabID         `json:"active_tab"`
}

// RequestOutcome describes how a bridged page request ended.
type RequestOutcome string

const (
	// OutcomeIssued indicates the backend call started.
	OutcomeIssued RequestOutcome = "issued"
	// OutcomeDelivered indicates the result was posted into the page.
	OutcomeDelivered RequestOutcome = "delivered"
	// OutcomeStale indicates the originating page was gone when the result arrived.
	OutcomeStale RequestOutcome = "stale"
	// OutcomeSuperseded indicates newer input replaced the request.
	OutcomeSuperseded RequestOutcome = "superseded"
	// OutcomeFailed indicates the backend failed; an error was posted into the page.
	OutcomeFailed RequestOutcome = "failed"
	// OutcomeTimedOut indicates the request exceeded its deadline.
	OutcomeTimedOut RequestOutcome = "timed_out"
)

// RequestEvent notifies the shell about bridged AI activity for status indicators.
type RequestEvent struct {
	ID      RequestID      `json:"id"`
	TabID   TabID          `json:"tab_id"`
	Kind    RequestKind    `json:"kind"`
	Outcome RequestOutcome `json:"outcome"`
	Message string         `json:"message,omitempty"`
}
