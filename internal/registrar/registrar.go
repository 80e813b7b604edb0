// Package registrar registers a storage controller as a virtual pageserver
// with the global and local control planes.
package registrar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/narvanalabs/pageserver-registrar/internal/cplane"
	"github.com/narvanalabs/pageserver-registrar/internal/credentials"
	"github.com/narvanalabs/pageserver-registrar/internal/models"
	"github.com/narvanalabs/pageserver-registrar/pkg/config"
)

// Service names used in logs and metrics.
const (
	ServiceConsole = "console"
	ServiceGlobal  = "global"
	ServiceLocal   = "local"
)

// Registration results recorded per service.
const (
	ResultRegistered = "registered"
	ResultSkipped    = "skipped"
	ResultFailed     = "failed"
)

// Recorder receives registration metrics.
type Recorder interface {
	Lookup(service, outcome string)
	Registration(service, result string)
	Version(v int64)
}

type nopRecorder struct{}

func (nopRecorder) Lookup(string, string)       {}
func (nopRecorder) Registration(string, string) {}
func (nopRecorder) Version(int64)               {}

// Result summarises a completed run.
type Result struct {
	Version          int64
	GlobalNodeID     models.NodeID
	LocalNodeID      models.NodeID
	GlobalRegistered bool
	LocalRegistered  bool
}

// Registrar runs the lookup-before-register sequence against the console,
// the global control plane and the local control plane.
type Registrar struct {
	cfg      *config.Config
	client   *cplane.Client
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Registrar. recorder may be nil.
func New(cfg *config.Config, client *cplane.Client, recorder Recorder, logger *slog.Logger) *Registrar {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registrar{
		cfg:      cfg,
		client:   client,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}
}

func (r *Registrar) consoleTarget() cplane.Target {
	return cplane.Target{Service: ServiceConsole, URL: r.cfg.ConsoleURL, Token: r.cfg.ConsoleAPIKey}
}

func (r *Registrar) globalTarget() cplane.Target {
	return cplane.Target{Service: ServiceGlobal, URL: r.cfg.GlobalCplaneURL, Token: r.cfg.GlobalToken}
}

func (r *Registrar) localTarget() cplane.Target {
	return cplane.Target{Service: ServiceLocal, URL: r.cfg.LocalCplaneURL, Token: r.cfg.LocalToken}
}

// Payload returns the base registration payload for the configured node.
func (r *Registrar) Payload() models.RegistrationPayload {
	return models.NewRegistrationPayload(r.cfg.Host, r.cfg.RegionID, r.cfg.Zone, r.cfg.HTTPPort)
}

// Run performs the full registration. It returns ErrVersionNotFound when the
// console has no pageserver for the region; no registration is attempted then.
func (r *Registrar) Run(ctx context.Context) (*Result, error) {
	payload := r.Payload()
	r.logStart(payload)

	r.logger.Info("get version from existing deployed pageserver")
	version, err := r.LookupVersion(ctx)
	if err != nil {
		if errors.Is(err, ErrVersionNotFound) {
			r.logger.Error("unable to find pageserver version", "console_url", r.cfg.ConsoleURL, "region", r.cfg.RegionID)
		}
		return nil, err
	}
	r.logger.Info("found latest pageserver version", "version", version, "region", r.cfg.RegionID)
	r.recorder.Version(version)
	payload = payload.WithVersion(version)

	result := &Result{Version: version}

	r.logger.Info("check if pageserver already registered in console")
	result.GlobalNodeID, result.GlobalRegistered, err = r.ensureRegistered(ctx, r.globalTarget(), func() models.RegistrationPayload {
		return payload
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("check if pageserver already registered in cplane")
	result.LocalNodeID, result.LocalRegistered, err = r.ensureRegistered(ctx, r.localTarget(), func() models.RegistrationPayload {
		if result.GlobalNodeID.IsZero() {
			r.logger.Warn("no global node_id known, registering in cplane without node_id")
		}
		return payload.WithNodeID(result.GlobalNodeID)
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// LookupVersion returns the version of the first console pageserver whose
// region is the configured region or its "-new" variant.
func (r *Registrar) LookupVersion(ctx context.Context) (int64, error) {
	target := r.consoleTarget()
	doc, outcome, err := r.client.Fetch(ctx, target, "")
	if err != nil {
		return 0, fmt.Errorf("querying console: %w", err)
	}
	r.recorder.Lookup(target.Service, string(outcome))

	var listing models.ConsolePageservers
	present, err := doc.Decode("data", &listing.Data)
	if err != nil {
		return 0, fmt.Errorf("console listing: %w", err)
	}
	if !present {
		r.logger.Warn("console response has no data field", "outcome", outcome)
		return 0, ErrVersionNotFound
	}

	for _, ps := range listing.Data {
		if !ps.MatchesRegion(r.cfg.RegionID) {
			continue
		}
		v, err := ps.Version.Int64()
		if err != nil {
			return 0, fmt.Errorf("console version %q for region %s: %w", ps.Version, ps.RegionID, err)
		}
		return v, nil
	}
	return 0, ErrVersionNotFound
}

// ensureRegistered looks the host up on target and registers it when absent.
// build is only called when a registration is needed.
func (r *Registrar) ensureRegistered(
	ctx context.Context,
	target cplane.Target,
	build func() models.RegistrationPayload,
) (models.NodeID, bool, error) {
	log := r.logger.With("service", target.Service)

	id, outcome, err := r.client.LookupNodeID(ctx, target, r.cfg.Host)
	if err != nil {
		return models.NodeID{}, false, fmt.Errorf("looking up %s node: %w", target.Service, err)
	}
	r.recorder.Lookup(target.Service, string(outcome))

	if !id.IsZero() {
		r.recorder.Registration(target.Service, ResultSkipped)
		log.Info("storage controller already registered", "node_id", id.String())
		return id, false, nil
	}

	log.Info("registering storage controller", "lookup_outcome", outcome)
	id, ok, err := r.client.Register(ctx, target, build())
	if err != nil {
		r.recorder.Registration(target.Service, ResultFailed)
		return models.NodeID{}, false, fmt.Errorf("registering in %s: %w", target.Service, err)
	}
	r.recorder.Registration(target.Service, ResultRegistered)

	if !ok {
		log.Warn("storage controller registered but response has no node_id")
		return models.NodeID{}, true, nil
	}
	log.Info("storage controller registered", "node_id", id.String())
	return id, true, nil
}

func (r *Registrar) logStart(payload models.RegistrationPayload) {
	raw, _ := json.Marshal(payload)
	r.logger.Info("resolved configuration",
		"global_cplane_url", r.cfg.GlobalCplaneURL,
		"local_cplane_url", r.cfg.LocalCplaneURL,
		"console_url", r.cfg.ConsoleURL,
		"payload", json.RawMessage(raw),
	)
	credentials.Describe(r.logger, r.now(), map[string]string{
		"JWT_TOKEN":               r.cfg.GlobalToken,
		"CONTROL_PLANE_JWT_TOKEN": r.cfg.LocalToken,
		"CONSOLE_API_KEY":         r.cfg.ConsoleAPIKey,
	})
}
