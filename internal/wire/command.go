// Package wire implements the translation-protocol binary framing used by
// internal/translate (request to the translation server) and by
// internal/control (TCACHE_INVALIDATE datagrams), per spec §4.3/§6.
//
// Framing: each packet is a 4-byte header (u16 length, u16 command, both
// little-endian) followed by length payload bytes. Packets are written
// back-to-back with no padding between them.
package wire

// Command is the translation-protocol packet type, a stable u16 registry.
type Command uint16

const (
	Nop Command = iota

	// Request-side commands (§4.3 "Request").
	Begin
	ErrorDocument
	Status
	LocalAddress
	LocalAddressString
	RemoteHost
	Host
	UserAgent
	Language
	Authorization
	URI
	Args
	QueryString
	WidgetType
	Session
	Check
	Auth
	Param
	ListenerTag
	InternalRedirect
	WantFullURI
	DirectoryIndex
	FileNotFound
	Enotdir
	ReadFile
	ProbePathSuffixes
	End

	// Response-side address-starting commands ("current address" cursor).
	Path
	Proxy
	Ajp
	Cgi
	Was
	FastCGI
	Pipe
	Nfs

	// Response-side modifiers of the current address.
	PathInfo
	DocumentRoot
	Interpreter
	Action
	Pair
	Append
	JailCGI
	Home
	ScriptName
	ExpandPath
	ExpandPathInfo

	// Response-side view/transformation/policy directives.
	View
	Regex
	InverseRegex
	Base
	TestPath
	Redirect
	Bounce
	Scheme
	MaxAge
	ExpiresRelative
	Vary
	Invalidate
	Site
	Realm
	RealmFromAuthBase
	User
	UserMaxAge
	DiscardSession
	SecureCookie
	CookieDomain
	CookieHost
	CookiePath
	Untrusted
	UntrustedPrefix
	UntrustedSiteSuffix
	ExternalSessionManager
	ExternalSessionKeepalive
	WWWAuthenticate
	AuthenticationInfo
	ContentType
	AutoGzip
	AutoDeflate
	RequestHeaderForward
	ResponseHeaderForward
	RequestHeader
	Header
	Process
	ProcessCSS
	ProcessText
	Filter
	FourXX
	RevealUser
	Want
	Previous
	SourceTag

	// Control-channel command consumed by internal/control (§6).
	TCacheInvalidate
	DumpPools
)

// headerSize is the framing header: u16 length + u16 command.
const headerSize = 4
