package validate

import (
	"bytes"
	"context"
	"image"
	"image/color/palette"
	"image/gif"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/wallpipe/internal/domain"
	"github.com/John-Robertt/wallpipe/internal/infra/imgx"
)

var fullHD = domain.SizePolicy{MinWidth: 1920, MinHeight: 1080}

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func serve(t *testing.T, body []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newValidator(t *testing.T, maxBytes int64) *Validator {
	t.Helper()
	return New(Options{
		Enabled:  true,
		Policy:   fullHD,
		MaxBytes: maxBytes,
		TempDir:  t.TempDir(),
	})
}

func TestValidate_MinimumResolutionAccepted(t *testing.T) {
	srv := serve(t, encodePNG(t, 1920, 1080))
	v := newValidator(t, 0)

	verdict := v.Inspect(context.Background(), srv.URL)
	require.True(t, verdict.Accepted, "期望通过，原因：%s", verdict.Reason)
	assert.Equal(t, imgx.Info{Width: 1920, Height: 1080, Format: "png"}, verdict.Info)
}

func TestValidate_BelowMinimumRejected(t *testing.T) {
	srv := serve(t, encodePNG(t, 1919, 1080))
	v := newValidator(t, 0)

	assert.False(t, v.Validate(context.Background(), srv.URL))
}

func TestValidate_OversizedContentLengthSkipsDecode(t *testing.T) {
	body := encodePNG(t, 1920, 1080)
	srv := serve(t, body)
	v := newValidator(t, int64(len(body)-1))

	probes := 0
	v.probe = func(r io.Reader) (imgx.Info, error) {
		probes++
		return imgx.Probe(r)
	}

	assert.False(t, v.Validate(context.Background(), srv.URL))
	assert.Equal(t, 0, probes, "超限时不应尝试解码")
}

func TestValidate_OversizedBodyWithoutContentLength(t *testing.T) {
	body := encodePNG(t, 1920, 1080)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 分块输出，不带 Content-Length。
		fl := w.(http.Flusher)
		_, _ = w.Write(body[:10])
		fl.Flush()
		_, _ = w.Write(body[10:])
	}))
	t.Cleanup(srv.Close)

	v := newValidator(t, int64(len(body)-1))
	probes := 0
	v.probe = func(r io.Reader) (imgx.Info, error) {
		probes++
		return imgx.Probe(r)
	}

	assert.False(t, v.Validate(context.Background(), srv.URL))
	assert.Equal(t, 0, probes)
}

func TestValidate_UnsupportedFormatRejected(t *testing.T) {
	var buf bytes.Buffer
	img := image.NewPaletted(image.Rect(0, 0, 1920, 1080), palette.Plan9)
	require.NoError(t, gif.Encode(&buf, img, nil))
	srv := serve(t, buf.Bytes())
	v := newValidator(t, 0)

	verdict := v.Inspect(context.Background(), srv.URL)
	assert.False(t, verdict.Accepted)
	assert.Equal(t, "gif", verdict.Info.Format)
}

func TestValidate_GarbageAndHTTPErrorsRejected(t *testing.T) {
	garbage := serve(t, []byte("definitely not an image"))
	missing := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(missing.Close)
	v := newValidator(t, 0)

	assert.False(t, v.Validate(context.Background(), garbage.URL))
	assert.False(t, v.Validate(context.Background(), missing.URL))
	assert.False(t, v.Validate(context.Background(), "http://127.0.0.1:1/unreachable.png"))
}

func TestValidate_CancelledContextRejected(t *testing.T) {
	srv := serve(t, encodePNG(t, 1920, 1080))
	v := newValidator(t, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, v.Validate(ctx, srv.URL))
}

func TestValidate_DisabledAcceptsEverything(t *testing.T) {
	v := New(Options{Enabled: false, Policy: fullHD})

	assert.False(t, v.Enabled())
	assert.True(t, v.Validate(context.Background(), "http://127.0.0.1:1/unreachable.png"))
	assert.True(t, v.Validate(context.Background(), "not even a url"))
}

func TestDetectCapability(t *testing.T) {
	ok, err := DetectCapability(t.TempDir())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = DetectCapability("/definitely/missing/dir")
	assert.Error(t, err)
	assert.False(t, ok)
}
