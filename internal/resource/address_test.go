package resource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveBaseLoadBase_LocalFile_RoundTrip(t *testing.T) {
	addr := Address{Kind: LocalFile, Path: "/srv/foo/bar.html"}

	base, ok := addr.SaveBase("bar.html")
	require.True(t, ok)
	assert.Equal(t, "/srv/foo/", base.Path)

	restored := base.LoadBase("bar.html")
	assert.Equal(t, addr.Path, restored.Path)
}

func TestSaveBase_NonMatchingSuffix_Fails(t *testing.T) {
	addr := Address{Kind: LocalFile, Path: "/srv/foo/bar.html"}

	_, ok := addr.SaveBase("nope.html")
	assert.False(t, ok)
}

func TestSaveBaseLoadBase_CGI_PathInfo_RoundTrip(t *testing.T) {
	addr := Address{Kind: FastCGI, Host: "/run/app.sock", ScriptName: "/app.fcgi", PathInfo: "/widgets/42"}

	base, ok := addr.SaveBase("/widgets/42")
	require.True(t, ok)
	assert.Equal(t, "", base.PathInfo)

	restored := base.LoadBase("/widgets/42")
	assert.Equal(t, addr.PathInfo, restored.PathInfo)
	assert.Equal(t, addr.ScriptName, restored.ScriptName)
}

func TestSaveBase_SuffixCrossingScriptNameBoundary_Fails(t *testing.T) {
	addr := Address{Kind: CGI, ScriptName: "/app.cgi", PathInfo: "/x"}

	// "app.cgi/x" is a suffix of the concatenation but reaches into ScriptName.
	_, ok := addr.SaveBase("app.cgi/x")
	assert.False(t, ok)
}
