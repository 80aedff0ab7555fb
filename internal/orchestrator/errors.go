package orchestrator

import (
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/netresearch/bengproxy/internal/errkind"
)

// statusForError maps an errkind.Kind to the HTTP status the dispatch
// funnel writes back to the client (spec §4.2 "Failure semantics").
// Cancelled never reaches here: the caller checks ctx.Err() first and
// emits no response at all.
func statusForError(err error) int {
	var ke *errkind.Error
	if !errors.As(err, &ke) {
		return 500
	}

	switch ke.Kind {
	case errkind.Protocol:
		return 400
	case errkind.Timeout:
		return 504
	case errkind.UpstreamRefused, errkind.UpstreamPremature, errkind.UpstreamIO, errkind.UpstreamGarbage:
		return 502
	case errkind.Translation:
		return 502
	case errkind.PolicyForbidden:
		return 403
	case errkind.NotFound:
		return 404
	case errkind.Loop:
		return 502
	default:
		return 500
	}
}

// logUpstreamError logs err at a level matching its severity: client-caused
// or benign conditions at debug, upstream/backend failures at warn, anything
// unclassified at error (spec §4.1 "socket EPIPE/ECONNRESET ... no error log
// beyond debug").
func logUpstreamError(method, uri string, err error) {
	var ke *errkind.Error
	if !errors.As(err, &ke) {
		log.Error().Err(err).Str("method", method).Str("uri", uri).Msg("orchestrator: unclassified error")
		return
	}

	entry := log.Warn()
	if ke.Kind == errkind.Protocol || ke.Kind == errkind.Cancelled {
		entry = log.Debug()
	}

	entry.Err(err).Str("method", method).Str("uri", uri).Str("kind", ke.Kind.String()).Msg("orchestrator: request failed")
}

// errorBody renders a compact HTML body for a synthesized error response,
// through inst.errorPages so repeated 404s/502s under load don't re-render
// the same page every request. The orchestrator never issues an
// error_document translate request, so every synthesized error response
// uses this body, even when the translate response declares
// error_document.
func (inst *Instance) errorBody(status int, detail string) []byte {
	return inst.errorPages.render(status, detail)
}

func httpStatusText(status int) string {
	switch status {
	case 400:
		return "Bad Request"
	case 403:
		return "Forbidden"
	case 404:
		return "Not Found"
	case 502:
		return "Bad Gateway"
	case 504:
		return "Gateway Timeout"
	default:
		return "Internal Server Error"
	}
}
