package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type protocolView struct {
	Slug  string `json:"slug"`
	Title string `json:"title"`
}

func withMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	SetClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { SetClient(nil) })
	return mr
}

func TestAside_FetchesOnceThenServesFromCache(t *testing.T) {
	mr := withMiniredis(t)
	ctx := context.Background()
	calls := 0
	fetch := func(dest *protocolView) func() error {
		return func() error {
			calls++
			*dest = protocolView{Slug: "classic-back-massage", Title: "Classic"}
			return nil
		}
	}

	var first protocolView
	require.NoError(t, Aside(ctx, ProtocolKey("classic-back-massage"), &first, ContentTTL, fetch(&first)))
	var second protocolView
	require.NoError(t, Aside(ctx, ProtocolKey("classic-back-massage"), &second, ContentTTL, fetch(&second)))

	assert.Equal(t, 1, calls)
	assert.Equal(t, first, second)
	assert.True(t, mr.Exists("content:protocol:classic-back-massage"))

	Invalidate(ctx, ProtocolKey("classic-back-massage"))
	assert.False(t, mr.Exists("content:protocol:classic-back-massage"))
}

func TestAside_FetchErrorIsNotCached(t *testing.T) {
	mr := withMiniredis(t)
	var dest protocolView
	err := Aside(context.Background(), ProtocolKey("x"), &dest, ContentTTL, func() error { return errors.New("db down") })
	assert.Error(t, err)
	assert.False(t, mr.Exists(ProtocolKey("x")))
}

func TestAside_WithoutRedis(t *testing.T) {
	SetClient(nil)
	calls := 0
	var dest protocolView
	for range 2 {
		require.NoError(t, Aside(context.Background(), "k", &dest, ContentTTL, func() error { calls++; return nil }))
	}
	assert.Equal(t, 2, calls)
}

func TestOptions(t *testing.T) {
	opts, err := Options("redis://:secret@cache:6380/2")
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, 2, opts.DB)

	opts, err = Options("localhost:6379")
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)

	_, err = Options("redis://%zz")
	assert.Error(t, err)
}
