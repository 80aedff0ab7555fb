package orchestrator

import (
	"context"
	"os"
	"strings"

	"github.com/netresearch/bengproxy/internal/errkind"
	"github.com/netresearch/bengproxy/internal/resource"
	"github.com/netresearch/bengproxy/internal/session"
	"github.com/netresearch/bengproxy/internal/translate"
)

// resolveSession determines the inbound session id per spec §4.2 step 1:
// the cookie wins over the query argument, and a recognized bot is forced
// stateless regardless of either.
func (inst *Instance) resolveSession(st *requestState, cookieValue, queryValue string) {
	if isBotUserAgent(st.userAgent) {
		st.isBot = true
		return
	}

	id, fromCookie, ok := session.ExtractID(cookieValue, queryValue)
	if !ok {
		return
	}

	st.sessionID = id
	st.haveSessionID = true
	st.sessionFromCookie = fromCookie
}

// buildTranslateRequest assembles the next outgoing TranslateRequest from
// the current state plus any continuation the previous turn demanded (spec
// §4.2 step 2).
func (st *requestState) buildTranslateRequest() translate.Request {
	req := st.tReq.Clone()

	req.URI = st.uri
	req.Host = st.host
	req.RemoteHost = st.remoteIP
	req.UserAgent = st.userAgent
	req.QueryString = st.query

	if st.haveSessionID {
		req.Session = []byte(session.FormatID(st.sessionID))
	}

	return req
}

// translateLoop drives spec §4.2's translate loop to a terminal action,
// leaving the final response in st.tResp for dispatch; it returns only an
// error. err is non-nil only for conditions that abort the request
// outright (translation-server failure, loop-counter exceeded).
func (inst *Instance) translateLoop(ctx context.Context, st *requestState) error {
	firstTurn := true

	for {
		req := st.buildTranslateRequest()

		// Only the first turn of a request is a cacheable lookup: every
		// later turn carries a continuation token (READ_FILE's CHECK,
		// DIRECTORY_INDEX, FILE_NOT_FOUND, ...) that the translation server
		// must see fresh to make forward progress, and the cache key (§4.4,
		// internal/tcache/key.go) only disambiguates on CHECK/AUTH, not on
		// those other continuation fields.
		var (
			resp *translate.Response
			hit  bool
		)

		if firstTurn {
			resp, hit = inst.Cache.Lookup(req)
		}

		if !hit {
			var err error

			resp, err = inst.Translate.Translate(ctx, req)
			if err != nil {
				return errkind.Wrap(errkind.Translation, "translate request failed", err)
			}

			inst.Cache.Store(req, resp)
		}

		firstTurn = false

		if len(resp.Invalidate) > 0 {
			inst.Cache.Invalidate(req, resp.Invalidate)
		}

		derivedRealm := session.DeriveRealm(resp, st.host)

		if st.lease != nil && session.RealmMismatch(st.lease.Session, derivedRealm) {
			return errkind.New(errkind.PolicyForbidden, "session realm mismatch")
		}

		if err := inst.applySessionEffects(st, resp, derivedRealm); err != nil {
			return err
		}

		st.tResp = resp
		st.tReq = req
		st.want = resp.Want

		again, err := inst.processControlPackets(ctx, st, resp)
		if err != nil {
			return err
		}

		if again {
			continue
		}

		return nil
	}
}

// applySessionEffects folds SESSION/USER/LANGUAGE/SESSION_SITE into the
// bound session lease (spec §4.2 step 4 "Apply session side-effects").
func (inst *Instance) applySessionEffects(st *requestState, resp *translate.Response, realm string) error {
	if st.isBot || resp.DiscardSession {
		return nil
	}

	if st.lease == nil {
		if len(resp.Session) == 0 && resp.User == "" {
			return nil
		}

		lease, err := inst.Sessions.New(byte(inst.Config.ClusterTag), realm)
		if err != nil {
			return errkind.Wrap(errkind.Unspecified, "session allocation failed", err)
		}

		st.lease = lease
	}

	sess := st.lease.Session
	sess.Realm = realm

	if len(resp.Session) > 0 {
		sess.TranslateBlob = append([]byte(nil), resp.Session...)
	}

	if resp.User != "" {
		session.ApplyAuthResult(st.lease, resp.User, resp.UserMaxAge, inst.now())
	}

	if resp.Language != "" {
		sess.Language = resp.Language
	}

	if resp.SessionSite != "" {
		if sess.WidgetState == nil {
			sess.WidgetState = make(map[string]string)
		}

		sess.WidgetState["site"] = resp.SessionSite
	}

	return inst.Sessions.Put(st.lease)
}

// processControlPackets applies one turn's control packets in the fixed
// priority spec §4.2 names, returning again=true when a new translate turn
// must run.
func (inst *Instance) processControlPackets(ctx context.Context, st *requestState, resp *translate.Response) (bool, error) {
	if resp.ReadFile != "" {
		if st.bumpLoop(&st.nReadFile) {
			return false, errkind.New(errkind.Loop, "too many READ_FILE loops")
		}

		content, err := os.ReadFile(resp.ReadFile)
		if err != nil {
			return false, errkind.Wrap(errkind.NotFound, "READ_FILE target missing", err)
		}

		st.tReq.ReadFile = resp.ReadFile
		st.tReq.Check = content

		return true, nil
	}

	if len(resp.ProbeSuffixes) > 0 {
		if st.bumpLoop(&st.nProbePathSuffixes) {
			return false, errkind.New(errkind.Loop, "too many PROBE_PATH_SUFFIXES loops")
		}

		if resp.Address.Kind == resource.LocalFile {
			for _, suffix := range resp.ProbeSuffixes {
				if _, err := os.Stat(resp.Address.Path + suffix); err == nil {
					st.path += suffix
					st.uri = st.path + queryTail(st.query)
					st.tReq.InternalRedirect = []byte(st.path)

					return true, nil
				}
			}
		}

		// No suffix matched: fall through to FILE_NOT_FOUND/terminal
		// handling below rather than looping forever.
	}

	if resp.Redirect != "" || resp.Bounce || resp.Status != 0 {
		return false, nil
	}

	if len(resp.Auth) > 0 && session.NeedsSubordinateAuth(sessionOf(st), inst.now()) {
		if st.bumpLoop(&st.nChecks) {
			return false, errkind.New(errkind.Loop, "too many AUTH loops")
		}

		st.tReq.Auth = session.AuthToken(resp.Auth, nil)

		return true, nil
	}

	if resp.DirectoryIndex != "" {
		if st.bumpLoop(&st.nDirectoryIndex) {
			return false, errkind.New(errkind.Loop, "too many DIRECTORY_INDEX loops")
		}

		st.tReq.DirectoryIndex = resp.DirectoryIndex

		return true, nil
	}

	if resp.FileNotFound != "" && resp.Address.Kind == resource.LocalFile {
		if _, err := os.Stat(resp.Address.Path); os.IsNotExist(err) {
			if st.bumpLoop(&st.nFileNotFound) {
				return false, errkind.New(errkind.Loop, "too many FILE_NOT_FOUND loops")
			}

			st.tReq.FileNotFound = resp.FileNotFound

			return true, nil
		}
	}

	if resp.Enotdir != "" && resp.Address.Kind == resource.LocalFile {
		if _, err := os.Stat(resp.Address.Path); isENOTDIR(err) {
			if st.bumpLoop(&st.nEnotdir) {
				return false, errkind.New(errkind.Loop, "too many ENOTDIR loops")
			}

			st.tReq.Enotdir = resp.Enotdir

			return true, nil
		}
	}

	return false, nil
}

func sessionOf(st *requestState) *session.Session {
	if st.lease == nil {
		return nil
	}

	return st.lease.Session
}

// terminalAddress resolves the address the final turn's response dispatches
// to, applying BASE/args/path_info per spec §4.2 step 5.
func (st *requestState) terminalAddress() resource.Address {
	view := st.tResp.DefaultView()
	addr := view.Address

	if addr.Kind == resource.None {
		addr = st.tResp.Address
	}

	if st.tResp.Base != "" {
		addr = addr.LoadBase(strings.TrimPrefix(st.path, st.tResp.Base))
	}

	return addr
}
