package render

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsahdlks/INgress/internal/bridge"
	"github.com/dbsahdlks/INgress/internal/docstore"
	"github.com/dbsahdlks/INgress/internal/document"
	"github.com/dbsahdlks/INgress/internal/portal"
)

func newRegistry(t *testing.T) *portal.Registry {
	t.Helper()
	r, err := portal.NewRegistry(portal.Seed())
	require.NoError(t, err)
	return r
}

func TestPresentStoresDocumentPerCycle(t *testing.T) {
	reg := newRegistry(t)
	store := docstore.NewLRU(16, time.Minute)
	p := New(reg, store, Options{APIBase: "https://host.example/", Timeout: 3 * time.Second})
	ctx := context.Background()

	require.NoError(t, p.Present(ctx, "s1", bridge.Cycle{Generation: 1}))
	require.NoError(t, p.Present(ctx, "s1", bridge.Cycle{Generation: 2, Diagnostic: true}))

	live, err := p.Document(ctx, "s1", 1)
	require.NoError(t, err)
	assert.Equal(t, document.ModeLiveMap, live.Mode)
	assert.Equal(t, 4, live.Markers)
	assert.False(t, live.HasCredential)
	assert.Contains(t, live.HTML, `src="https://host.example/provider/loader.js"`)
	assert.Contains(t, live.HTML, `base: "https://host.example/bridge/s1"`)
	assert.Contains(t, live.HTML, "}, 3000);")

	diag, err := p.Document(ctx, "s1", 2)
	require.NoError(t, err)
	assert.Equal(t, document.ModeDiagnostic, diag.Mode)

	_, err = p.Document(ctx, "s1", 3)
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestCaptureAppearsOnNextCycle(t *testing.T) {
	reg := newRegistry(t)
	p := New(reg, docstore.NewLRU(16, time.Minute), Options{})
	ctx := context.Background()

	require.NoError(t, p.Present(ctx, "s", bridge.Cycle{Generation: 1}))
	before, _ := p.Document(ctx, "s", 1)
	assert.NotContains(t, before.HTML, document.ColorResistance)

	_, err := reg.Capture(1, "agent", portal.FactionResistance)
	require.NoError(t, err)
	require.NoError(t, reg.SetUserLocation(portal.LatLng{Latitude: 39.91, Longitude: 116.4}))

	require.NoError(t, p.Present(ctx, "s", bridge.Cycle{Generation: 2}))
	after, _ := p.Document(ctx, "s", 2)
	assert.Contains(t, after.HTML, document.ColorResistance)
	assert.Contains(t, after.HTML, "placeUser(map, [116.4, 39.91]);")
}

func TestSessionCenter(t *testing.T) {
	p := New(newRegistry(t), docstore.NewLRU(16, time.Minute), Options{})
	ctx := context.Background()
	p.SetCenter("s", &portal.LatLng{Latitude: 31.2304, Longitude: 121.4737})
	require.NoError(t, p.Present(ctx, "s", bridge.Cycle{Generation: 1}))
	doc, _ := p.Document(ctx, "s", 1)
	assert.Contains(t, doc.HTML, "center: [121.4737, 31.2304]")
	assert.NotContains(t, doc.HTML, "placeUser(")

	p.Forget("s")
	_, err := p.Document(ctx, "s", 1)
	assert.ErrorIs(t, err, docstore.ErrNotFound)
	assert.Nil(t, p.center("s"))
}

type refusing struct{ docstore.Store }

func (refusing) Put(context.Context, document.Document) error { return docstore.ErrCredentialBearing }

func TestInlineCredentialRefusedByStore(t *testing.T) {
	p := New(newRegistry(t), refusing{}, Options{CredentialMode: document.CredentialInline, Credential: "k"})
	err := p.Present(context.Background(), "s", bridge.Cycle{Generation: 1})
	assert.ErrorIs(t, err, docstore.ErrCredentialBearing)
}
