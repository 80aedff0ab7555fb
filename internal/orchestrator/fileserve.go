package orchestrator

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"syscall"

	"github.com/pkg/xattr"

	"github.com/netresearch/bengproxy/internal/errkind"
	"github.com/netresearch/bengproxy/internal/httpengine"
	"github.com/netresearch/bengproxy/internal/resource"
)

// contentTypeXattr is the extended attribute name beng-proxy historically
// reads a file's MIME type from before falling back to extension sniffing
// (spec scenario 1 "Content-Type from xattr or application/octet-stream").
const contentTypeXattr = "user.Content-Type"

// serveLocalFile answers a LocalFile resource.Address directly, without a
// backend round-trip (spec §3 Address.LocalFile, scenario 1).
func (inst *Instance) serveLocalFile(st *requestState, addr resource.Address) (*httpengine.Response, error) {
	path := addr.Path

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) || isENOTDIR(err) {
			return nil, errkind.Wrap(errkind.NotFound, "local file missing", err)
		}

		return nil, errkind.Wrap(errkind.UpstreamIO, "local file open failed", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errkind.Wrap(errkind.UpstreamIO, "local file stat failed", err)
	}

	if info.IsDir() {
		f.Close()
		return nil, errkind.New(errkind.NotFound, "local path is a directory")
	}

	header := make(http.Header)
	header.Set("Content-Type", contentTypeFor(path))
	header.Set("ETag", etagFor(info))
	header.Set("Last-Modified", info.ModTime().UTC().Format(http.TimeFormat))

	return &httpengine.Response{
		Status: 200,
		Header: header,
		Body:   f,
		Size:   info.Size(),
	}, nil
}

// contentTypeFor prefers the file's xattr-stored MIME type, then falls back
// to extension sniffing, then application/octet-stream (spec scenario 1).
func contentTypeFor(path string) string {
	if raw, err := xattr.Get(path, contentTypeXattr); err == nil && len(raw) > 0 {
		return string(raw)
	}

	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}

	return "application/octet-stream"
}

// isENOTDIR reports whether err is a path lookup failing because a
// non-terminal path component exists but isn't a directory, the condition
// spec §4.2's ENOTDIR continuation exists to recover from.
func isENOTDIR(err error) bool {
	return errors.Is(err, syscall.ENOTDIR)
}

// etagFor derives a weak-free ETag from mtime+size, avoiding a full content
// hash for every request (spec scenario 1 "ETag present"; exact derivation
// is unspecified so size+mtime is used, matching the original's inode-free
// fields available without a stat syscall per read).
func etagFor(info os.FileInfo) string {
	sum := sha1.Sum([]byte(fmt.Sprintf("%d-%d", info.Size(), info.ModTime().UnixNano())))
	return `"` + hex.EncodeToString(sum[:8]) + `"`
}
