package orchestrator

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/netresearch/bengproxy/internal/backend"
	"github.com/netresearch/bengproxy/internal/balancer"
	"github.com/netresearch/bengproxy/internal/errkind"
	"github.com/netresearch/bengproxy/internal/resource"
	"github.com/netresearch/bengproxy/internal/retry"
)

// probe is the balancer's Connector: a lightweight dial used only to
// select a live candidate address and update FailureTable/sticky state.
// The backend adapter redials the winning address itself inside Send (see
// DESIGN.md Open Question 8 for why these are two separate connects).
func probe(ctx context.Context, addr string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "tcp", addr)
}

// candidateAddresses splits a resource.Address's Host field into a
// TcpBalancer address list. A single upstream is the common case; a
// comma-separated Host lets one translate response describe a pool
// (spec §4.6's address_list has no wire representation of its own in this
// core, so it rides along the resource address the same way the rest of
// the CGI-family fields do).
func candidateAddresses(host string, sticky balancer.StickyMode) balancer.AddressList {
	return balancer.AddressList{
		Addresses:  strings.Split(host, ","),
		StickyMode: sticky,
	}
}

// sendToNetworkBackend selects a live address via inst.Balancer and drives
// the adapter appropriate for addr.Kind, retrying once per spec §4.6 "HTTP
// backend retry: if the request has no body and the upstream failed with
// refused before first byte, retry ... with fresh address selection".
func (inst *Instance) sendToNetworkBackend(ctx context.Context, addr resource.Address, sticky balancer.StickyContext, req backend.Request) (*backend.Response, error) {
	list := candidateAddresses(addr.Host, balancer.StickyNone)

	attempt := func() (*backend.Response, error) {
		_, picked, _, err := inst.Balancer.Get(ctx, list, sticky, probe)
		if err != nil {
			return nil, errkind.Wrap(errkind.UpstreamRefused, "no live backend address", err)
		}

		resp, sendErr := inst.sendOnce(ctx, addr, picked, req)
		if sendErr != nil {
			inst.Failures.MarkFailed(picked)
			return nil, sendErr
		}

		inst.Failures.ClearResponseFailure(picked)

		if sticky.ClientIP != "" {
			inst.Balancer.Remember(sticky.ClientIP, picked)
		}

		if resp.Status >= 500 {
			inst.Failures.MarkResponseFailure(picked)
		}

		return resp, nil
	}

	resp, err := attempt()
	if err == nil || req.Body != nil || !isRetryableUpstream(err) {
		return resp, err
	}

	// Bodyless request, first try refused/premature: retry exactly once
	// against a freshly balanced address (spec §4.6 "HTTP backend retry").
	// retry.BackendConfig's MaxAttempts=2 documents the same one-extra-try
	// budget; it isn't driven through retry.Do here because that helper
	// retries unconditionally on error and can't express the
	// refused/premature-only gate already applied above.
	for n := 1; n < retry.BackendConfig().MaxAttempts; n++ {
		resp, err = attempt()
		if err == nil || !isRetryableUpstream(err) {
			return resp, err
		}
	}

	return resp, err
}

func isRetryableUpstream(err error) bool {
	var ue *errkind.Error
	if !errors.As(err, &ue) {
		return false
	}

	return ue.Kind == errkind.UpstreamRefused || ue.Kind == errkind.UpstreamPremature
}

func (inst *Instance) sendOnce(ctx context.Context, addr resource.Address, picked string, req backend.Request) (*backend.Response, error) {
	switch addr.Kind {
	case resource.HTTP:
		resp, err := inst.httpAdapter.Send(ctx, picked, req)
		return resp, classifyBackendErr(err)
	case resource.AJP:
		resp, err := inst.ajpAdapter.Send(ctx, picked, req)
		return resp, classifyBackendErr(err)
	case resource.FastCGI:
		resp, err := inst.fcgiAdapter.Send(ctx, picked, addr.DocumentRoot+addr.ScriptName, req)
		return resp, classifyBackendErr(err)
	case resource.WAS:
		resp, err := inst.wasAdapter.Send(ctx, picked, req)
		return resp, classifyBackendErr(err)
	case resource.LHTTP:
		resp, err := inst.lhttpAdapter.Send(ctx, addr.Action, req)
		return resp, classifyBackendErr(err)
	default:
		return nil, errkind.New(errkind.Unspecified, "unsupported resource kind for network dispatch")
	}
}

// classifyBackendErr maps a backend.UpstreamError into the errkind.Kind
// the orchestrator's failure semantics and HTTP status mapping dispatch on
// (spec §4.2 "Failure semantics").
func classifyBackendErr(err error) error {
	if err == nil {
		return nil
	}

	var ue *backend.UpstreamError
	if u, ok := err.(*backend.UpstreamError); ok {
		ue = u
	} else {
		return errkind.Wrap(errkind.UpstreamIO, "backend error", err)
	}

	switch ue.Class {
	case backend.Refused:
		return errkind.Wrap(errkind.UpstreamRefused, "connection refused", ue)
	case backend.Premature:
		return errkind.Wrap(errkind.UpstreamPremature, "upstream closed prematurely", ue)
	case backend.Garbage:
		return errkind.Wrap(errkind.UpstreamGarbage, "unparsable upstream response", ue)
	case backend.Timeout:
		return errkind.Wrap(errkind.Timeout, "upstream timed out", ue)
	default:
		return errkind.Wrap(errkind.UpstreamIO, "upstream i/o error", ue)
	}
}
