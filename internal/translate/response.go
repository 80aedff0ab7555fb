package translate

import (
	"net/http"
	"time"

	"github.com/netresearch/bengproxy/internal/headers"
	"github.com/netresearch/bengproxy/internal/resource"
)

// TransformKind discriminates one step of the response post-processing
// chain (spec §3 "Transformation").
type TransformKind int

const (
	TransformProcess TransformKind = iota
	TransformProcessCSS
	TransformProcessText
	TransformFilter
)

// Transformation is one step of a View's processing chain.
type Transformation struct {
	Kind TransformKind

	// PROCESS/PROCESS_CSS options, opaque to this package (passed to the
	// injected processor function per spec §1 non-goals).
	Options map[string]string

	// FILTER fields.
	FilterAddress resource.Address
	RevealUser    bool
	FourXX        bool
}

// View is a named bundle of address, forwarding matrices and
// transformation chain (spec GLOSSARY "View").
type View struct {
	Name                  string
	Address               resource.Address
	RequestHeaderForward  headers.Matrix
	ResponseHeaderForward headers.Matrix
	Transformations       []Transformation
}

// Response is the rich policy record returned by one translate transaction
// (spec §3 "TranslateResponse").
type Response struct {
	Status int

	Address resource.Address
	Base    string
	Regex         string
	InverseRegex  bool
	TestPath      string

	DirectoryIndex string
	FileNotFound   string
	Enotdir        string
	ProbeSuffixes  []string
	ReadFile       string

	Redirect string
	Bounce   bool
	Scheme   string
	Host     string
	URI      string

	WWWAuthenticate      string
	AuthenticationInfo   string
	AddedRequestHeaders  http.Header
	AddedResponseHeaders http.Header
	ContentType          string
	AutoGzip             bool
	AutoDeflate          bool

	Views []View

	Session               []byte
	User                  string
	UserMaxAge            time.Duration
	Language              string
	Realm                 string
	RealmFromAuthBase     bool
	SessionSite           string
	Check                 []byte
	Auth                  []byte
	DiscardSession        bool
	SecureCookie          bool
	CookieDomain          string
	CookieHost            string
	CookiePath            string
	Untrusted             string
	UntrustedPrefix       string
	UntrustedSiteSuffix   string

	ExternalSessionManager   string
	ExternalSessionKeepalive time.Duration

	MaxAge          time.Duration
	ExpiresRelative time.Duration
	Vary            []string
	Invalidate      []string
	Site            string

	Previous    bool
	Want        []string
	WantFullURI bool

	ErrorDocument bool
}

// DefaultView returns the response's first (default) view, or a zero View
// when Views is empty (spec §4.3 "the first view is the default"). The
// default view is unnamed, so an empty Name does not mean that no views
// are present.
func (r *Response) DefaultView() View {
	if len(r.Views) == 0 {
		return View{}
	}

	return r.Views[0]
}
