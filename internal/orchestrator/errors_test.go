package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/netresearch/bengproxy/internal/errkind"
)

func TestStatusForError_Mapping(t *testing.T) {
	cases := []struct {
		kind errkind.Kind
		want int
	}{
		{errkind.Protocol, 400},
		{errkind.Timeout, 504},
		{errkind.UpstreamRefused, 502},
		{errkind.UpstreamPremature, 502},
		{errkind.UpstreamIO, 502},
		{errkind.UpstreamGarbage, 502},
		{errkind.Translation, 502},
		{errkind.PolicyForbidden, 403},
		{errkind.NotFound, 404},
		{errkind.Loop, 502},
		{errkind.Unspecified, 500},
	}

	for _, tc := range cases {
		got := statusForError(errkind.New(tc.kind, "x"))
		assert.Equal(t, tc.want, got, "kind %v", tc.kind)
	}
}

func TestStatusForError_UnclassifiedErrorIs500(t *testing.T) {
	assert.Equal(t, 500, statusForError(assertError{}))
}

type assertError struct{}

func (assertError) Error() string { return "boom" }

func TestErrorPageCache_HitReturnsSameBytes(t *testing.T) {
	c := newErrorPageCache(time.Minute)

	first := c.render(404, "")
	second := c.render(404, "")

	assert.Equal(t, first, second)
}

func TestErrorPageCache_DifferentStatusDiffers(t *testing.T) {
	c := newErrorPageCache(time.Minute)

	notFound := c.render(404, "")
	badGateway := c.render(502, "")

	assert.NotEqual(t, notFound, badGateway)
}
