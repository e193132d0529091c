package chunkdl

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/hashicorp/go-retryablehttp"
)

// probeRetries is the fixed number of attempts a size probe gets before
// giving up.
const probeRetries = 3

// Probe issues a HEAD request and returns the remote resource's content
// length. A non-2xx status fails with BadStatusError; a missing or
// non-positive Content-Length fails with ErrUnknownSize.
func Probe(ctx context.Context, url, userAgent string) (int64, error) {
	client := retryablehttp.NewClient()
	client.RetryMax = probeRetries - 1
	client.Logger = nil
	// Hand back the last response once retries run out, so a persistent
	// non-2xx surfaces as BadStatusError rather than a generic give-up error.
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, &NetworkError{Detail: "building probe request", Err: err}
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
		}
		return 0, &NetworkError{Detail: "probing " + url, Err: err}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, &BadStatusError{Code: resp.StatusCode}
	}

	cl := resp.Header.Get("Content-Length")
	if cl == "" {
		return 0, ErrUnknownSize
	}
	size, err := strconv.ParseInt(cl, 10, 64)
	if err != nil || size <= 0 {
		return 0, ErrUnknownSize
	}
	return size, nil
}
