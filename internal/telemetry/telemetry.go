// Package telemetry announces the engine's diagnostics/metrics
// endpoint via mDNS/DNS-SD, grounded on dns_sd.go's announcement of
// the KISS-over-TCP service using the same pure-Go
// github.com/brutella/dnssd package. This is transport discovery
// only — the ping/diagnostics command surface itself stays out of
// scope (§1) — so the announcement just advertises where a metrics
// scrape or diagnostic dump can be reached.
package telemetry

import (
	"context"

	"github.com/brutella/dnssd"
	"github.com/charmbracelet/log"
)

// ServiceType is the DNS-SD service type the engine announces under.
const ServiceType = "_satlink-telemetry._tcp"

// Announcer wraps a dnssd.Responder for the engine's telemetry
// endpoint.
type Announcer struct {
	log      *log.Logger
	responder dnssd.Responder
}

// Announce registers name/port with the local mDNS responder and
// starts responding in the background. Cancel ctx to stop responding.
func Announce(ctx context.Context, name string, port int, logger *log.Logger) (*Announcer, error) {
	cfg := dnssd.Config{Name: name, Type: ServiceType, Port: port}

	sv, err := dnssd.NewService(cfg)
	if err != nil {
		return nil, err
	}

	rp, err := dnssd.NewResponder()
	if err != nil {
		return nil, err
	}
	if _, err := rp.Add(sv); err != nil {
		return nil, err
	}

	a := &Announcer{log: logger, responder: rp}
	go func() {
		if err := rp.Respond(ctx); err != nil && logger != nil {
			logger.Warn("telemetry: dns-sd responder stopped", "err", err)
		}
	}()
	if logger != nil {
		logger.Info("telemetry: announcing", "name", name, "port", port, "type", ServiceType)
	}
	return a, nil
}
