package geo

import (
	"errors"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsahdlks/INgress/internal/portal"
)

func TestClientIP(t *testing.T) {
	cases := []struct {
		name   string
		header map[string]string
		remote string
		want   string
	}{
		{"xff first hop", map[string]string{"X-Forwarded-For": "1.2.3.4, 10.0.0.1"}, "9.9.9.9:1", "1.2.3.4"},
		{"cloudflare", map[string]string{"CF-Connecting-IP": "5.6.7.8"}, "9.9.9.9:1", "5.6.7.8"},
		{"real ip", map[string]string{"X-Real-IP": "8.8.4.4"}, "9.9.9.9:1", "8.8.4.4"},
		{"forwarded", map[string]string{"Forwarded": `for="[2001:db8::1]";proto=https`}, "9.9.9.9:1", "2001:db8::1"},
		{"remote v4", nil, "203.0.113.9:5555", "203.0.113.9"},
		{"remote v6", nil, "[2001:db8::2]:443", "2001:db8::2"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tc.remote
			for k, v := range tc.header {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tc.want, ClientIP(r))
		})
	}
}

type stubLocator struct {
	ll  portal.LatLng
	err error
}

func (s stubLocator) Center(string) (portal.LatLng, error) { return s.ll, s.err }

func TestCenterFor(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	assert.Nil(t, CenterFor(nil, r))
	assert.Nil(t, CenterFor(stubLocator{err: errors.New("miss")}, r))

	got := CenterFor(stubLocator{ll: portal.LatLng{Latitude: 31.23, Longitude: 121.47}}, r)
	require.NotNil(t, got)
	assert.Equal(t, 31.23, got.Latitude)
}

func TestOpenMissingDatabase(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.mmdb"))
	assert.Error(t, err)
}
