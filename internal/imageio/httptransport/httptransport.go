// Package httptransport is the real imageio.Adapter transport: an
// http.Client issuing ranged GET/PUT requests, a PATCH for zero, and a
// PATCH for flush against an imageio service URL, the verb shapes the
// remote storage endpoint exposes. TLS handling uses an explicit
// tls.Config that also honors a secure=false query parameter, skipping
// certificate validation for test setups.
package httptransport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"golang.org/x/sync/singleflight"

	"github.com/gaby/sparse-stream/internal/errs"
	"github.com/gaby/sparse-stream/internal/extent"
	"github.com/gaby/sparse-stream/internal/imageio"
)

// insecureTLSConfig skips certificate validation entirely, for the
// imageio service's test-setup convention.
func insecureTLSConfig() *tls.Config {
	return &tls.Config{InsecureSkipVerify: true}
}

// Adapter talks to an imageio-fronted storage endpoint over HTTPS.
type Adapter struct {
	base   *url.URL
	client *http.Client

	// group coalesces concurrent Extents(ctx, c) calls for the same
	// context into a single round trip.
	group singleflight.Group
}

// Open prepares an HTTP client for the imageio service at rawURL; no
// request is sent until the first adapter call. A secure=false query
// parameter (consumed and stripped here, never forwarded) skips TLS
// certificate validation, matching oVirt-imageio's test-setup
// convention.
func Open(ctx context.Context, rawURL string) (*Adapter, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing URL: %v", errs.ErrTransport, err)
	}
	insecure := false
	if q := u.Query(); q.Has("secure") {
		insecure = q.Get("secure") == "false"
		q.Del("secure")
		u.RawQuery = q.Encode()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if insecure {
		transport.TLSClientConfig = insecureTLSConfig()
	}

	a := &Adapter{
		base: u,
		client: &http.Client{
			Transport: transport,
			Timeout:   0, // callers set per-request deadlines via ctx
		},
	}
	return a, nil
}

func (a *Adapter) endpoint(suffix string) string {
	u := *a.base
	u.Path = joinPath(u.Path, suffix)
	return u.String()
}

func joinPath(base, suffix string) string {
	if len(base) > 0 && base[len(base)-1] == '/' {
		return base + suffix
	}
	return base + "/" + suffix
}

func (a *Adapter) Size(ctx context.Context) (uint64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodOptions, a.base.String(), nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errs.ErrTransport, err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errs.ErrTransport, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: OPTIONS status %s", errs.ErrTransport, resp.Status)
	}
	var body struct {
		Size uint64 `json:"size"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("%w: decoding size: %v", errs.ErrTransport, err)
	}
	return body.Size, nil
}

type wireExtent struct {
	Start  uint64 `json:"start"`
	Length uint64 `json:"length"`
	Zero   bool   `json:"zero"`
	Dirty  bool   `json:"dirty"`
}

func (a *Adapter) Extents(ctx context.Context, c imageio.Context) ([]extent.Extent, error) {
	key := string(c)
	result, err, _ := a.group.Do(key, func() (any, error) {
		u := a.endpoint("extents")
		q := url.Values{"context": {string(c)}}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u+"?"+q.Encode(), nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrTransport, err)
		}
		resp, err := a.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrTransport, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusUnprocessableEntity {
			return nil, fmt.Errorf("%w: context %q not supported by transfer", errs.ErrUnsupportedContext, c)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("%w: extents status %s", errs.ErrTransport, resp.Status)
		}
		var wire []wireExtent
		if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
			return nil, fmt.Errorf("%w: decoding extents: %v", errs.ErrTransport, err)
		}
		out := make([]extent.Extent, 0, len(wire))
		for _, we := range wire {
			kind := extent.Data
			if we.Zero {
				kind = extent.Zero
			}
			out = append(out, extent.Extent{Start: we.Start, Length: we.Length, Kind: kind, Dirty: we.Dirty})
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]extent.Extent), nil
}

func (a *Adapter) WriteTo(ctx context.Context, sink io.Writer, offset, length uint64) error {
	if length == 0 {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.base.String(), nil)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrTransport, err)
	}
	req.Header.Set("Range", rangeHeader(offset, length))
	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrTransport, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusPartialContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: GET range status %s", errs.ErrTransport, resp.Status)
	}
	n, err := io.CopyN(sink, resp.Body, int64(length))
	if err != nil && err != io.EOF {
		return fmt.Errorf("%w: streaming %d bytes, got %d: %v", errs.ErrShortIO, length, n, err)
	}
	if uint64(n) != length {
		return fmt.Errorf("%w: streaming %d bytes, got %d", errs.ErrShortIO, length, n)
	}
	return nil
}

func (a *Adapter) ReadFrom(ctx context.Context, source io.Reader, offset, length uint64) error {
	if length == 0 {
		return nil
	}
	body := io.LimitReader(source, int64(length))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, a.base.String(), body)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrTransport, err)
	}
	req.Header.Set("Content-Range", contentRangeHeader(offset, length))
	req.ContentLength = int64(length)
	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrTransport, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("%w: PUT range status %s", errs.ErrTransport, resp.Status)
	}
	return nil
}

func (a *Adapter) Zero(ctx context.Context, offset, length uint64) error {
	payload, _ := json.Marshal(map[string]any{"op": "zero", "offset": offset, "size": length})
	return a.patch(ctx, payload)
}

func (a *Adapter) Flush(ctx context.Context) error {
	payload, _ := json.Marshal(map[string]any{"op": "flush"})
	return a.patch(ctx, payload)
}

func (a *Adapter) patch(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, a.base.String(), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrTransport, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("%w: PATCH status %s", errs.ErrTransport, resp.Status)
	}
	return nil
}

func (a *Adapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

func rangeHeader(offset, length uint64) string {
	return "bytes=" + strconv.FormatUint(offset, 10) + "-" + strconv.FormatUint(offset+length-1, 10)
}

func contentRangeHeader(offset, length uint64) string {
	return "bytes " + strconv.FormatUint(offset, 10) + "-" + strconv.FormatUint(offset+length-1, 10) + "/*"
}
