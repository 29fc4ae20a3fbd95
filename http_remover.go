package nobg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"mime/multipart"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

// ErrEmptyResponse is returned when the removal service responds with an
// empty body.
var ErrEmptyResponse = errors.New("removal service returned empty body")

const (
	// DefaultRequestTimeout defines maximum duration of a single removal
	// request, including upload and response reading.
	DefaultRequestTimeout = 60 * time.Second

	// RemovePath is the rembg server endpoint accepting multipart uploads.
	RemovePath = "/api/remove"
)

// HTTPRemover implements interface Remover by calling a rembg HTTP server
// ("rembg s"). The image is uploaded PNG encoded in multipart field "file"
// and the response body is decoded as PNG. Uses fasthttp.Client to reduce
// garbage generation.
type HTTPRemover struct {
	log     zerolog.Logger
	url     string
	timeout time.Duration
	client  fasthttp.Client
}

// NewHTTPRemover returns new instance of HTTPRemover for the server at
// baseURL, e.g. "http://127.0.0.1:7000".
func NewHTTPRemover(l zerolog.Logger, baseURL string) *HTTPRemover {
	return &HTTPRemover{
		log:     l.With().Str("component", "http-remover").Logger(),
		url:     strings.TrimRight(baseURL, "/") + RemovePath,
		timeout: DefaultRequestTimeout,
		client: fasthttp.Client{
			ReadTimeout:         DefaultRequestTimeout,
			MaxConnsPerHost:     1,
			ReadBufferSize:      64 * 1024,
			MaxResponseBodySize: 64 * 1024 * 1024},
	}
}

// SetTimeout set maximum duration of a single removal request.
func (hr *HTTPRemover) SetTimeout(d time.Duration) {
	hr.timeout = d
	hr.client.ReadTimeout = d
}

// URL returns endpoint the remover posts to.
func (hr *HTTPRemover) URL() string {
	return hr.url
}

// Remove implements interface Remover.
func (hr *HTTPRemover) Remove(ctx context.Context, img image.Image) (image.Image, error) {

	body, ctype, err := multipartPNG(img)
	if err != nil {
		return nil, err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.SetRequestURI(hr.url)
	req.Header.SetMethod("POST")
	req.Header.SetContentType(ctype)
	req.SetBody(body)

	t := time.Now()
	if err := hr.do(ctx, req, resp); err != nil {
		return nil, err
	}

	if code := resp.StatusCode(); code != fasthttp.StatusOK {
		return nil, fmt.Errorf("removal service: http code %d", code)
	}
	if len(resp.Body()) == 0 {
		return nil, ErrEmptyResponse
	}

	out, err := png.Decode(bytes.NewReader(resp.Body()))
	if err != nil {
		return nil, errors.New("removal service response could not be decoded [" + err.Error() + "]")
	}

	hr.log.Debug().Int("size", len(body)).Int("resp-size", len(resp.Body())).
		Str("dur", time.Since(t).String()).Msg("background removed")
	return out, nil
}

// do sends the request, waiting for a free connection while ctx is alive.
func (hr *HTTPRemover) do(ctx context.Context, req *fasthttp.Request, resp *fasthttp.Response) error {

	err := hr.client.DoTimeout(req, resp, hr.timeout)
	if err != fasthttp.ErrNoFreeConns {
		return err
	}

	// can be replaced with exponential backoff.
	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			err = hr.client.DoTimeout(req, resp, hr.timeout)
			if err != fasthttp.ErrNoFreeConns {
				return err
			}
		}
	}
}

func multipartPNG(img image.Image) ([]byte, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "image.png")
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if err := png.Encode(part, img); err != nil {
		return nil, "", fmt.Errorf("encode image: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return body.Bytes(), writer.FormDataContentType(), nil
}
