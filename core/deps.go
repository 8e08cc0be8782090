package core

import (
	"pkt.systems/browserx/internal/metrics"
	"pkt.systems/browserx/internal/persist"
	"pkt.systems/browserx/internal/scripts"
	"pkt.systems/pslog"
)

// ServiceDeps captures dependencies for the core service. Surfaces is required;
// everything else is optional.
type ServiceDeps struct {
	Surfaces SurfaceFactory
	Backend  Backend
	Fetcher  PageFetcher
	// Scripts overrides the embedded page scripts.
	Scripts *scripts.Set
	// Store overrides the store opened from ServiceConfig.StateDir.
	Store     *persist.Store
	EventSink EventSink
	Metrics   *metrics.Metrics
	Logger    pslog.Logger
}
