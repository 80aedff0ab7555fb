// Package resource implements the ResourceAddress tagged union (spec §3)
// and the BASE path-suffix rewriting used by the translation cache (§4.4).
package resource

import (
	"strings"
)

// Kind discriminates the ResourceAddress variant.
type Kind int

const (
	None Kind = iota
	LocalFile
	HTTP
	AJP
	LHTTP
	Pipe
	CGI
	FastCGI
	WAS
	NFS
)

// Address is the tagged union described in spec §3. Not every field applies
// to every Kind; callers are expected to only read the fields relevant to
// Kind, matching the C union's discipline without an actual Go union.
type Address struct {
	Kind Kind

	// LocalFile / CGI-family.
	Path         string
	DocumentRoot string

	// HTTP/AJP/LHTTP/FastCGI/WAS upstream.
	Host string // "host:port" or "/path/to.sock"

	// CGI-family request decomposition.
	ScriptName string
	PathInfo   string
	Query      string

	Interpreter string
	Action      string
	Home        string
	JailCGI     bool

	Params  []string // PAIR/APPEND accumulated args, verbatim order
	Expand  map[string]string

	// NFS.
	NFSServer string
	NFSExport string
}

// SaveBase removes suffix from the address's path-bearing fields so the
// resulting Address can be cached as a BASE parent entry (spec §3, §4.4
// "Stored addresses are BASE-rewritten"). Returns ok=false and a zero
// Address if suffix is not in fact a suffix of the relevant field.
func (a Address) SaveBase(suffix string) (Address, bool) {
	out := a

	switch a.Kind {
	case LocalFile, NFS:
		trimmed, ok := trimSuffix(a.Path, suffix)
		if !ok {
			return Address{}, false
		}

		out.Path = trimmed
	case CGI, FastCGI, WAS, LHTTP, Pipe:
		trimmed, ok := trimSuffix(a.ScriptName+a.PathInfo, suffix)
		if !ok {
			return Address{}, false
		}
		// Suffix must fall entirely within PathInfo; ScriptName is the
		// script identity and never part of the cacheable suffix.
		if len(trimmed) < len(a.ScriptName) {
			return Address{}, false
		}

		out.PathInfo = trimmed[len(a.ScriptName):]
	case HTTP, AJP:
		trimmed, ok := trimSuffix(a.Path, suffix)
		if !ok {
			return Address{}, false
		}

		out.Path = trimmed
	default:
		return Address{}, false
	}

	return out, true
}

// LoadBase reattaches suffix to a base address produced by SaveBase,
// reconstructing the original path fields. Invariant (spec §3, §8):
// LoadBase(SaveBase(addr, s), s) reproduces addr's URI/path fields exactly.
func (a Address) LoadBase(suffix string) Address {
	out := a

	switch a.Kind {
	case LocalFile, NFS, HTTP, AJP:
		out.Path = a.Path + suffix
	case CGI, FastCGI, WAS, LHTTP, Pipe:
		out.PathInfo = a.PathInfo + suffix
	}

	return out
}

func trimSuffix(s, suffix string) (string, bool) {
	if suffix == "" {
		return s, true
	}

	if !strings.HasSuffix(s, suffix) {
		return "", false
	}

	return strings.TrimSuffix(s, suffix), true
}
