package app

import (
	"log/slog"

	"busmon.openmbta.org/internal/config"
	"busmon.openmbta.org/internal/csvlog"
	"busmon.openmbta.org/internal/metrics"
	"busmon.openmbta.org/internal/poller"
	"busmon.openmbta.org/internal/publish"
	"busmon.openmbta.org/internal/topology"
)

// Application holds the long-lived dependencies the poll loop and the status
// API share. Everything is wired once at startup; the optional members
// (TripLog, Publisher) are nil when their feature is not configured.
type Application struct {
	Config    *config.Config
	Logger    *slog.Logger
	Metrics   *metrics.Collector
	Topology  *topology.Resolver
	Poller    *poller.Poller
	Snapshots *poller.Snapshots
	TripLog   *csvlog.Writer
	Publisher *publish.NATSPublisher
}
