package nodes

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeyFromURL(t *testing.T) {
	key, err := KeyFromURL("/demuxers/0/programs/1.json")
	require.NoError(t, err)
	require.Equal(t, "-demuxers-0-programs-1", key)

	key, err = KeyFromURL("/demuxers/0/programs/1")
	require.NoError(t, err)
	require.Equal(t, "-demuxers-0-programs-1", key)

	key, err = KeyFromURL("/stream_procs.json")
	require.NoError(t, err)
	require.Equal(t, "-stream_procs", key)
}

func TestKeyFromURLRejectsIrreversibleInput(t *testing.T) {
	for _, url := range []string{"", "   ", ".json", "/demuxers/0/pro-grams/1.json"} {
		_, err := KeyFromURL(url)
		require.Error(t, err, url)
		require.True(t, errors.Is(err, ErrMalformedURL), url)
	}
}

func TestURLFromKeyInvertsKeyFromURL(t *testing.T) {
	urls := []string{
		"/demuxers/0.json",
		"/demuxers/0/programs/12.json",
		"/demuxers/3/programs/1/elementary_streams/256/es_processors/0.json",
		"/system.json",
	}
	for _, url := range urls {
		key, err := KeyFromURL(url)
		require.NoError(t, err)
		require.Equal(t, url, URLFromKey(key))
	}
}

func TestIDInURL(t *testing.T) {
	id, ok := IDInURL("/demuxers/0/programs/17.json", "/programs/")
	require.True(t, ok)
	require.Equal(t, "17", id)

	id, ok = IDInURL("/demuxers/4/programs/17.json", "/demuxers/")
	require.True(t, ok)
	require.Equal(t, "4", id)

	_, ok = IDInURL("/demuxers/0.json", "/programs/")
	require.False(t, ok)

	_, ok = IDInURL("/demuxers/0/programs/17", "/programs/")
	require.False(t, ok)

	_, ok = IDInURL("/demuxers/0.json", "")
	require.False(t, ok)
}
