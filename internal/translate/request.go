// Package translate implements the translation-protocol client (spec §4.3):
// TranslateRequest/TranslateResponse, the wire codec built on internal/wire,
// and the response-packet state machine that turns a directive stream into
// a TranslateResponse.
package translate

// Request is an immutable, per-turn outgoing translate request (spec §3
// "TranslateRequest"). A new Request is built for every follow-up turn of
// the translate loop; nothing here is mutated in place once constructed.
type Request struct {
	URI         string
	Host        string
	Session     []byte
	RemoteHost  string
	UserAgent   string
	Language    string
	QueryString string
	Args        string
	Param       []string
	WidgetType  string

	Check             []byte
	Auth              []byte
	WidgetTypeOnly    bool
	InternalRedirect  []byte
	WantFullURI       []byte
	ListenerTag       string

	ErrorDocumentStatus int // 0 when not an error-document request

	// Continuation fields requested by the previous turn's Want[] (§4.2 step 2).
	User string

	DirectoryIndex      string
	FileNotFound        string
	Enotdir             string
	ReadFile            string
	ProbePathSuffixes   []string
}

// Clone returns a deep-enough copy suitable for mutation into the next
// turn's request, since a Request must never be mutated after it is
// submitted (spec §3 "Immutable once built for one translate call").
func (r Request) Clone() Request {
	out := r
	out.Param = append([]string(nil), r.Param...)
	out.ProbePathSuffixes = append([]string(nil), r.ProbePathSuffixes...)

	return out
}
