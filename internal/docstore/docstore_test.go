package docstore

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsahdlks/INgress/internal/document"
)

func doc(session string, gen uint64) document.Document {
	return document.Document{HTML: "<html></html>", Session: session, Generation: gen}
}

func TestKey(t *testing.T) {
	assert.Equal(t, "ingress:doc:abc:12", Key("abc", 12))
}

func TestLRUGetPut(t *testing.T) {
	ctx := context.Background()
	c := NewLRU(2, time.Minute)
	_, err := c.Get(ctx, "s", 1)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, c.Put(ctx, doc("s", 1)))
	require.NoError(t, c.Put(ctx, doc("s", 2)))
	_, err = c.Get(ctx, "s", 1)
	require.NoError(t, err)
	require.NoError(t, c.Put(ctx, doc("s", 3)))

	// gen 2 was least recently used
	_, err = c.Get(ctx, "s", 2)
	assert.ErrorIs(t, err, ErrNotFound)
	got, err := c.Get(ctx, "s", 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got.Generation)
	assert.Equal(t, 2, c.Len())
}

func TestLRUExpires(t *testing.T) {
	ctx := context.Background()
	c := NewLRU(4, 10*time.Millisecond)
	require.NoError(t, c.Put(ctx, doc("s", 1)))
	time.Sleep(25 * time.Millisecond)
	_, err := c.Get(ctx, "s", 1)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, c.Len())
}

func TestLRUForget(t *testing.T) {
	ctx := context.Background()
	c := NewLRU(8, time.Minute)
	_ = c.Put(ctx, doc("a", 1))
	_ = c.Put(ctx, doc("a", 2))
	_ = c.Put(ctx, doc("ab", 1))
	require.NoError(t, c.Forget(ctx, "a"))
	assert.Equal(t, 1, c.Len())
	_, err := c.Get(ctx, "ab", 1)
	assert.NoError(t, err)
}

func TestRedisRefusesCredentialDocuments(t *testing.T) {
	// no connection is attempted for refused documents
	s := NewRedis(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}), time.Minute)
	d := doc("s", 1)
	d.HasCredential = true
	assert.ErrorIs(t, s.Put(context.Background(), d), ErrCredentialBearing)
}

type failing struct{}

func (failing) Get(context.Context, string, uint64) (document.Document, error) {
	return document.Document{}, errors.New("down")
}
func (failing) Put(context.Context, document.Document) error { return errors.New("down") }
func (failing) Forget(context.Context, string) error         { return nil }

type refusing struct{ failing }

func (refusing) Put(context.Context, document.Document) error { return ErrCredentialBearing }

func TestChain(t *testing.T) {
	ctx := context.Background()
	mem := NewLRU(8, time.Minute)
	c := NewChain(nil, failing{}, mem)

	require.NoError(t, c.Put(ctx, doc("s", 1)))
	got, err := c.Get(ctx, "s", 1)
	require.NoError(t, err)
	assert.Equal(t, "s", got.Session)

	_, err = c.Get(ctx, "s", 9)
	assert.Error(t, err)

	cred := doc("s", 2)
	cred.HasCredential = true
	require.NoError(t, NewChain(refusing{}, mem).Put(ctx, cred))
	assert.ErrorIs(t, NewChain(refusing{}).Put(ctx, cred), ErrCredentialBearing)
	assert.Error(t, NewChain(failing{}).Put(ctx, doc("s", 3)))
}

func TestRedisRoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	ctx := context.Background()
	rc := OpenRedis(addr, os.Getenv("REDIS_TEST_PASS"), 0)
	defer rc.Close()
	s := NewRedis(rc, time.Minute)
	require.NoError(t, s.Put(ctx, doc("it-session", 7)))
	got, err := s.Get(ctx, "it-session", 7)
	require.NoError(t, err)
	assert.Equal(t, "<html></html>", got.HTML)
	require.NoError(t, s.Forget(ctx, "it-session"))
	_, err = s.Get(ctx, "it-session", 7)
	assert.ErrorIs(t, err, ErrNotFound)
}
