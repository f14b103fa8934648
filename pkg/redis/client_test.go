package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyspace(t *testing.T) {
	assert.Equal(t, "birthday:rsvp:abc", Keyspace("birthday").Key("rsvp", "abc"))
	assert.Equal(t, "birthday:rsvp_ids", Keyspace("birthday").Key("rsvp_ids"))
	assert.Equal(t, "rsvp:abc", Keyspace("").Key("rsvp", "abc"))
}

func TestNewClient(t *testing.T) {
	mr := miniredis.RunT(t)

	c, err := NewClient(context.Background(), Options{Addr: mr.Addr(), Prefix: "test"}, nil)
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, Keyspace("test"), c.Keys)

	c2, err := NewClient(context.Background(), Options{URL: "redis://" + mr.Addr() + "/0"}, nil)
	require.NoError(t, err)
	defer c2.Close()
}

func TestNewClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewClient(context.Background(), Options{Addr: addr}, nil)
	require.Error(t, err)
}

func TestNewClient_BadURL(t *testing.T) {
	_, err := NewClient(context.Background(), Options{URL: "http://nope"}, nil)
	require.Error(t, err)
}
