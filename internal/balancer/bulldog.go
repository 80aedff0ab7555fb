package balancer

// Bulldog is the external health-check oracle consulted by the balancer
// (spec GLOSSARY "Bulldog": "boolean healthy + fading flag"). The real
// bulldog daemon is out of scope (§1 non-goals); StaticBulldog lets callers
// without one treat every address as healthy, and tests inject failures.
type Bulldog interface {
	// Healthy reports whether addr should be considered for selection.
	Healthy(addr string) bool
	// Fading reports whether addr is healthy but being drained: still
	// usable as a last resort, never preferred when a non-fading
	// alternative exists.
	Fading(addr string) bool
}

// StaticBulldog reports every address as healthy and non-fading, the
// default when no external oracle is configured.
type StaticBulldog struct{}

func (StaticBulldog) Healthy(string) bool { return true }
func (StaticBulldog) Fading(string) bool  { return false }

// MapBulldog is a test/ops-console double: explicit per-address overrides.
type MapBulldog struct {
	Unhealthy map[string]bool
	FadingSet map[string]bool
}

func (b MapBulldog) Healthy(addr string) bool { return !b.Unhealthy[addr] }
func (b MapBulldog) Fading(addr string) bool  { return b.FadingSet[addr] }
