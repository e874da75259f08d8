package fetch

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(maxRedirects int) *Client {
	return New(Config{
		ProbeTimeout: 2 * time.Second,
		MaxRedirects: maxRedirects,
	})
}

func TestProbe_Metadata(t *testing.T) {
	var gotMethod string
	var gotHeaders http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotHeaders = r.Header.Clone()
		w.Header().Set("Content-Type", "video/x-matroska")
		w.Header().Set("Content-Disposition", `attachment; filename="movie.mkv"`)
		w.Header().Set("Content-Length", "123456")
	}))
	defer srv.Close()

	c := testClient(5)
	res, err := c.Probe(context.Background(), srv.URL+"/movie.mkv")
	require.NoError(t, err)

	assert.Equal(t, http.MethodHead, gotMethod)
	assert.Equal(t, int64(123456), res.ContentLength)
	assert.Equal(t, "video/x-matroska", res.ContentType)
	assert.Equal(t, `attachment; filename="movie.mkv"`, res.Disposition)

	// Outbound requests are browser-shaped.
	assert.Contains(t, gotHeaders.Get("User-Agent"), "Mozilla/5.0")
	assert.Equal(t, "*/*", gotHeaders.Get("Accept"))
	assert.Equal(t, "gzip, deflate, br", gotHeaders.Get("Accept-Encoding"))
	assert.Equal(t, "bytes=0-", gotHeaders.Get("Range"))
}

func TestProbe_ContentRangeTotal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Range", "bytes 0-99/4200")
		w.WriteHeader(http.StatusPartialContent)
	}))
	defer srv.Close()

	c := testClient(5)
	res, err := c.Probe(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, int64(4200), res.ContentLength)
}

func TestProbe_UnknownLength(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		// No Content-Length, no Content-Range.
	}))
	defer srv.Close()

	c := testClient(5)
	res, err := c.Probe(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), res.ContentLength)
}

func TestProbe_UpstreamFailureStatus(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusForbidden, http.StatusServiceUnavailable} {
		t.Run(strconv.Itoa(status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(status)
			}))
			defer srv.Close()

			c := testClient(5)
			_, err := c.Probe(context.Background(), srv.URL)
			require.Error(t, err)
			code, ok := IsStatusError(err)
			require.True(t, ok, "want StatusError, got %v", err)
			assert.Equal(t, status, code)
		})
	}
}

func TestProbe_InvalidURL(t *testing.T) {
	c := testClient(5)
	_, err := c.Probe(context.Background(), "ftp://example.com/a")
	require.ErrorIs(t, err, ErrInvalidURL)
}

func TestProbe_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c := New(Config{ProbeTimeout: 50 * time.Millisecond, MaxRedirects: 5})
	_, err := c.Probe(context.Background(), srv.URL)
	require.Error(t, err)
}

func TestOpen_PlainStream(t *testing.T) {
	payload := bytes.Repeat([]byte("container bytes "), 64)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	c := testClient(5)
	body, res, err := c.Open(context.Background(), srv.URL)
	require.NoError(t, err)
	defer body.Close()

	got, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.Equal(t, int64(len(payload)), res.ContentLength)
	assert.Equal(t, "video/mp4", res.ContentType)
}

func TestOpen_GzipDecoded(t *testing.T) {
	payload := bytes.Repeat([]byte("not actually video but compressible "), 128)
	var compressed bytes.Buffer
	gz := gzip.NewWriter(&compressed)
	_, err := gz.Write(payload)
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		_, _ = w.Write(compressed.Bytes())
	}))
	defer srv.Close()

	c := testClient(5)
	body, _, err := c.Open(context.Background(), srv.URL)
	require.NoError(t, err)
	defer body.Close()

	got, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestOpen_DeflateDecoded(t *testing.T) {
	payload := bytes.Repeat([]byte("deflate framed payload "), 100)

	t.Run("zlib framed", func(t *testing.T) {
		var compressed bytes.Buffer
		zw := zlib.NewWriter(&compressed)
		_, err := zw.Write(payload)
		require.NoError(t, err)
		require.NoError(t, zw.Close())
		openAndExpect(t, compressed.Bytes(), "deflate", payload)
	})

	t.Run("raw stream", func(t *testing.T) {
		var compressed bytes.Buffer
		fw, err := flate.NewWriter(&compressed, flate.DefaultCompression)
		require.NoError(t, err)
		_, err = fw.Write(payload)
		require.NoError(t, err)
		require.NoError(t, fw.Close())
		openAndExpect(t, compressed.Bytes(), "deflate", payload)
	})
}

func TestOpen_UnsupportedEncodingPassthrough(t *testing.T) {
	payload := []byte("opaque brotli-ish bytes")
	openAndExpect(t, payload, "br", payload)
}

func openAndExpect(t *testing.T, wire []byte, encoding string, want []byte) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", encoding)
		_, _ = w.Write(wire)
	}))
	defer srv.Close()

	c := testClient(5)
	body, _, err := c.Open(context.Background(), srv.URL)
	require.NoError(t, err)
	defer body.Close()

	got, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestOpen_UpstreamFailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	c := testClient(5)
	_, _, err := c.Open(context.Background(), srv.URL)
	require.Error(t, err)
	code, ok := IsStatusError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusGone, code)
}

func TestOpen_ContextCancelAbortsRead(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("head"))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c := testClient(5)
	body, _, err := c.Open(ctx, srv.URL)
	require.NoError(t, err)
	defer body.Close()

	buf := make([]byte, 4)
	_, err = io.ReadFull(body, buf)
	require.NoError(t, err)

	cancel()
	_, err = io.Copy(io.Discard, body)
	require.Error(t, err)
}

func TestRedirects_FollowedWithinBound(t *testing.T) {
	payload := []byte("final hop")
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()
	mux.HandleFunc("/hop/", func(w http.ResponseWriter, r *http.Request) {
		n, _ := strconv.Atoi(r.URL.Path[len("/hop/"):])
		if n <= 0 {
			_, _ = w.Write(payload)
			return
		}
		http.Redirect(w, r, fmt.Sprintf("/hop/%d", n-1), http.StatusFound)
	})

	c := testClient(5)
	body, _, err := c.Open(context.Background(), srv.URL+"/hop/5")
	require.NoError(t, err)
	defer body.Close()

	got, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestRedirects_ChainTooLong(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()
	mux.HandleFunc("/hop/", func(w http.ResponseWriter, r *http.Request) {
		n, _ := strconv.Atoi(r.URL.Path[len("/hop/"):])
		if n <= 0 {
			_, _ = w.Write([]byte("unreachable"))
			return
		}
		http.Redirect(w, r, fmt.Sprintf("/hop/%d", n-1), http.StatusFound)
	})

	c := testClient(5)
	_, _, err := c.Open(context.Background(), srv.URL+"/hop/6")
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrTooManyRedirects), "got %v", err)
}
