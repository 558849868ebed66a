package shell

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/framewright/provision/contracts"
)

// HTTPDownloader fetches artifacts over plain HTTP(S), asking for a byte
// range when the caller wants to resume. A no-progress watchdog aborts
// stalled transfers so the retry layer can take over.
type HTTPDownloader struct {
	client       *http.Client
	stallTimeout time.Duration
}

func NewHTTPDownloader(client *http.Client, stallTimeout time.Duration) *HTTPDownloader {
	return &HTTPDownloader{client: client, stallTimeout: stallTimeout}
}

func NewHTTPClient() *http.Client {
	return &http.Client{Transport: &http.Transport{
		MaxIdleConns:        4,
		IdleConnTimeout:     30 * time.Second,
		TLSHandshakeTimeout: 15 * time.Second,
	}}
}

func (this *HTTPDownloader) Download(ctx context.Context, request contracts.FetchRequest) (contracts.FetchResult, error) {
	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodGet, request.Address.String(), nil)
	if err != nil {
		return contracts.FetchResult{}, fmt.Errorf("%w: %s", contracts.NetworkError, err)
	}
	if request.Offset > 0 {
		httpRequest.Header.Set("Range", fmt.Sprintf("bytes=%d-", request.Offset))
	}

	response, err := this.client.Do(httpRequest)
	if err != nil {
		return contracts.FetchResult{}, retryable(err.Error())
	}

	switch {
	case response.StatusCode == http.StatusPartialContent:
		return this.result(response, true), nil
	case response.StatusCode == http.StatusOK:
		return this.result(response, false), nil
	case response.StatusCode >= 500, response.StatusCode == http.StatusTooManyRequests:
		_ = response.Body.Close()
		return contracts.FetchResult{}, retryable("unexpected status: " + response.Status)
	default:
		_ = response.Body.Close()
		return contracts.FetchResult{}, fmt.Errorf("%w: unexpected status: %s", contracts.NetworkError, response.Status)
	}
}

func (this *HTTPDownloader) result(response *http.Response, resumed bool) contracts.FetchResult {
	body := response.Body
	if this.stallTimeout > 0 {
		body = newStallReader(body, this.stallTimeout)
	}
	return contracts.FetchResult{Body: body, Resumed: resumed, Length: response.ContentLength}
}

func retryable(detail string) error {
	return fmt.Errorf("%w: %w: %s", contracts.NetworkError, contracts.RetryErr, detail)
}

// stallReader closes the underlying body when no bytes arrive within the
// timeout, turning a silent hang into a retryable read error.
type stallReader struct {
	body    io.ReadCloser
	watch   *time.Timer
	timeout time.Duration
	stalled atomic.Bool
}

func newStallReader(body io.ReadCloser, timeout time.Duration) *stallReader {
	this := &stallReader{body: body, timeout: timeout}
	this.watch = time.AfterFunc(timeout, func() {
		this.stalled.Store(true)
		_ = this.body.Close()
	})
	return this
}

func (this *stallReader) Read(buffer []byte) (int, error) {
	count, err := this.body.Read(buffer)
	if err != nil && this.stalled.Load() {
		return count, retryable(fmt.Sprintf("no progress for %s", this.timeout))
	}
	if err == nil {
		this.watch.Reset(this.timeout)
	}
	return count, err
}

func (this *stallReader) Close() error {
	this.watch.Stop()
	return this.body.Close()
}
