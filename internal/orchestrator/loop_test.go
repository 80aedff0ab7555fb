package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netresearch/bengproxy/internal/resource"
	"github.com/netresearch/bengproxy/internal/session"
	"github.com/netresearch/bengproxy/internal/translate"
)

func baseState(uri string) *requestState {
	return &requestState{
		method:    "GET",
		uri:       uri,
		path:      uri,
		host:      "example.test",
		remoteIP:  "203.0.113.5",
		userAgent: "Mozilla/5.0",
	}
}

func TestResolveSession_BotForcesStateless(t *testing.T) {
	inst := newTestInstance(t)
	st := baseState("/")
	st.userAgent = "Mozilla/5.0 (compatible; Googlebot/2.1)"

	inst.resolveSession(st, "", "")

	assert.True(t, st.isBot)
	assert.False(t, st.haveSessionID)
}

func TestResolveSession_ValidCookieWinsOverQuery(t *testing.T) {
	inst := newTestInstance(t)
	st := baseState("/")

	cookieLease, err := inst.Sessions.New(0, "example.test")
	require.NoError(t, err)
	queryLease, err := inst.Sessions.New(0, "example.test")
	require.NoError(t, err)

	inst.resolveSession(st, session.FormatID(cookieLease.Session.ID), session.FormatID(queryLease.Session.ID))

	assert.True(t, st.haveSessionID)
	assert.True(t, st.sessionFromCookie)
	assert.Equal(t, cookieLease.Session.ID, st.sessionID)
}

func TestResolveSession_UnparseableCookieFallsBackToQuery(t *testing.T) {
	inst := newTestInstance(t)
	st := baseState("/")

	queryLease, err := inst.Sessions.New(0, "example.test")
	require.NoError(t, err)

	inst.resolveSession(st, "not-hex", session.FormatID(queryLease.Session.ID))

	assert.True(t, st.haveSessionID)
	assert.False(t, st.sessionFromCookie)
	assert.Equal(t, queryLease.Session.ID, st.sessionID)
}

func TestTranslateLoop_CacheHit_SingleTurn(t *testing.T) {
	inst := newTestInstance(t)
	st := baseState("/index.html")

	req := st.buildTranslateRequest()
	resp := &translate.Response{
		MaxAge:  time.Minute,
		Address: resource.Address{Kind: resource.LocalFile, Path: "/var/www/index.html"},
	}
	require.True(t, inst.Cache.Store(req, resp))

	err := inst.translateLoop(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, "/var/www/index.html", st.tResp.Address.Path)
}

func TestTranslateLoop_ReadFileContinuation(t *testing.T) {
	tmp := t.TempDir()
	checkFile := filepath.Join(tmp, "check.txt")
	require.NoError(t, os.WriteFile(checkFile, []byte("check-payload"), 0o644))

	inst := newTestInstance(t)
	st := baseState("/widget")

	first := st.buildTranslateRequest()
	require.True(t, inst.Cache.Store(first, &translate.Response{
		MaxAge:   time.Minute,
		ReadFile: checkFile,
	}))

	inst.Translate = translate.NewClient(scriptedTranslateServer(t, []*translate.Response{
		{
			MaxAge:  time.Minute,
			Address: resource.Address{Kind: resource.LocalFile, Path: "/var/www/widget.html"},
		},
	}))

	err := inst.translateLoop(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, "check-payload", string(st.tReq.Check))
	assert.Equal(t, "/var/www/widget.html", st.tResp.DefaultView().Address.Path)
}

func TestTranslateLoop_ProbePathSuffixes(t *testing.T) {
	tmp := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmp, "report.pdf"), []byte("pdf"), 0o644))

	inst := newTestInstance(t)
	st := baseState("/report")

	first := st.buildTranslateRequest()
	require.True(t, inst.Cache.Store(first, &translate.Response{
		MaxAge:        time.Minute,
		Address:       resource.Address{Kind: resource.LocalFile, Path: filepath.Join(tmp, "report")},
		ProbeSuffixes: []string{".html", ".pdf"},
	}))

	inst.Translate = translate.NewClient(scriptedTranslateServer(t, []*translate.Response{
		{
			MaxAge:  time.Minute,
			Address: resource.Address{Kind: resource.LocalFile, Path: filepath.Join(tmp, "report.pdf")},
		},
	}))

	err := inst.translateLoop(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, "/report.pdf", st.path)
	assert.Equal(t, filepath.Join(tmp, "report.pdf"), st.tResp.DefaultView().Address.Path)
}

func TestTranslateLoop_EnotdirContinuation(t *testing.T) {
	tmp := t.TempDir()
	regularFile := filepath.Join(tmp, "notadir.txt")
	require.NoError(t, os.WriteFile(regularFile, []byte("x"), 0o644))
	brokenPath := filepath.Join(regularFile, "whatever")

	inst := newTestInstance(t)
	st := baseState("/widget")

	first := st.buildTranslateRequest()
	require.True(t, inst.Cache.Store(first, &translate.Response{
		MaxAge:  time.Minute,
		Address: resource.Address{Kind: resource.LocalFile, Path: brokenPath},
		Enotdir: "continue-token",
	}))

	inst.Translate = translate.NewClient(scriptedTranslateServer(t, []*translate.Response{
		{
			MaxAge:  time.Minute,
			Address: resource.Address{Kind: resource.LocalFile, Path: regularFile},
		},
	}))

	err := inst.translateLoop(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, "continue-token", st.tReq.Enotdir)
	assert.Equal(t, regularFile, st.tResp.DefaultView().Address.Path)
}

func TestTranslateLoop_AuthContinuation(t *testing.T) {
	inst := newTestInstance(t)
	st := baseState("/private")

	first := st.buildTranslateRequest()
	require.True(t, inst.Cache.Store(first, &translate.Response{
		MaxAge: time.Minute,
		Auth:   []byte("secret-auth-token"),
	}))

	inst.Translate = translate.NewClient(scriptedTranslateServer(t, []*translate.Response{
		{
			MaxAge:  time.Minute,
			User:    "alice",
			Address: resource.Address{Kind: resource.LocalFile, Path: "/var/www/private.html"},
		},
	}))

	err := inst.translateLoop(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, []byte("secret-auth-token"), st.tReq.Auth)
	require.NotNil(t, st.lease)
	assert.Equal(t, "alice", st.lease.Session.User)
}

func TestTranslateLoop_ReadFileMissingFails(t *testing.T) {
	inst := newTestInstance(t)
	st := baseState("/infinite")

	req := st.buildTranslateRequest()
	require.True(t, inst.Cache.Store(req, &translate.Response{
		MaxAge:   time.Minute,
		ReadFile: "/does/not/exist/on/disk",
	}))

	err := inst.translateLoop(context.Background(), st)
	require.Error(t, err)
}

func TestTranslateLoop_LoopCounterExceeded(t *testing.T) {
	tmp := t.TempDir()
	checkFile := filepath.Join(tmp, "check.txt")
	require.NoError(t, os.WriteFile(checkFile, []byte("again"), 0o644))

	inst := newTestInstance(t)
	st := baseState("/spin")

	req := st.buildTranslateRequest()
	require.True(t, inst.Cache.Store(req, &translate.Response{
		MaxAge:   time.Minute,
		ReadFile: checkFile,
	}))

	responses := make([]*translate.Response, loopLimit+2)
	for i := range responses {
		responses[i] = &translate.Response{MaxAge: time.Minute, ReadFile: checkFile}
	}

	inst.Translate = translate.NewClient(scriptedTranslateServer(t, responses))

	err := inst.translateLoop(context.Background(), st)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "READ_FILE")
}

func TestApplySessionEffects_CreatesLeaseOnUser(t *testing.T) {
	inst := newTestInstance(t)
	st := baseState("/")

	resp := &translate.Response{User: "alice", UserMaxAge: time.Hour}

	require.NoError(t, inst.applySessionEffects(st, resp, "example.test"))
	require.NotNil(t, st.lease)
	assert.Equal(t, "alice", st.lease.Session.User)
}

func TestApplySessionEffects_BotNeverGetsLease(t *testing.T) {
	inst := newTestInstance(t)
	st := baseState("/")
	st.isBot = true

	resp := &translate.Response{User: "alice"}

	require.NoError(t, inst.applySessionEffects(st, resp, "example.test"))
	assert.Nil(t, st.lease)
}

func TestApplySessionEffects_SessionSiteStoredUnderWidgetState(t *testing.T) {
	inst := newTestInstance(t)
	st := baseState("/")

	resp := &translate.Response{User: "alice", SessionSite: "shop"}

	require.NoError(t, inst.applySessionEffects(st, resp, "example.test"))
	require.NotNil(t, st.lease)
	assert.Equal(t, "shop", st.lease.Session.WidgetState["site"])
}

func TestTerminalAddress_BaseReattachment(t *testing.T) {
	st := baseState("/widgets/foo/bar.html")

	st.tResp = &translate.Response{
		Base:    "/widgets/",
		Address: resource.Address{Kind: resource.LocalFile, Path: "/srv/widgets/"},
	}

	addr := st.terminalAddress()
	assert.Equal(t, "/srv/widgets/foo/bar.html", addr.Path)
}

func TestTerminalAddress_DefaultViewWins(t *testing.T) {
	st := baseState("/x")

	st.tResp = &translate.Response{
		Address: resource.Address{Kind: resource.LocalFile, Path: "/fallback"},
		Views: []translate.View{
			{Name: "default", Address: resource.Address{Kind: resource.HTTP, Host: "10.0.0.1:80"}},
		},
	}

	addr := st.terminalAddress()
	assert.Equal(t, resource.HTTP, addr.Kind)
	assert.Equal(t, "10.0.0.1:80", addr.Host)
}
