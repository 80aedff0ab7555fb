package orchestrator

import (
	"io"
	"net/http"

	"github.com/netresearch/bengproxy/internal/session"
	"github.com/netresearch/bengproxy/internal/translate"
)

// loopLimit bounds every per-turn counter (spec §4.2 "each capped at 4-8 to
// break loops").
const loopLimit = 8

// requestState is the per-request working state the translate loop and
// dispatch funnel thread through one HTTP request's lifetime (spec §4.2
// "State (per request)").
type requestState struct {
	method      string
	uri         string // path + query, as received
	path        string
	query       string
	host        string
	remoteIP    string
	userAgent   string
	headers    http.Header
	body       io.Reader
	contentLen int64

	sessionID         session.ID
	haveSessionID     bool
	sessionFromCookie bool
	lease             *session.Lease
	isBot             bool

	tReq  translate.Request
	tResp *translate.Response

	previous bool

	nChecks             int
	nInternalRedirects  int
	nReadFile           int
	nFileNotFound       int
	nEnotdir            int
	nDirectoryIndex     int
	nProbePathSuffixes  int

	transformed    bool
	compressed     bool
	processorFocus bool
	userModified   bool
	wantUser       bool

	// want carries the previous turn's want[] so the next outgoing
	// request can supply the requested continuation fields (spec §4.2
	// step 2 "plus the fields in want[] from the last turn").
	want []string
}

func (st *requestState) bumpLoop(counter *int) bool {
	*counter++
	return *counter > loopLimit
}
