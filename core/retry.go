package core

import (
	"context"
	"errors"
	"time"

	"github.com/smartystreets/clock"
	"github.com/smartystreets/logging"

	"github.com/framewright/provision/contracts"
)

// RetryDownloader wraps the fetch primitive with bounded retries and
// exponential backoff. Only failures marked retryable are attempted
// again; everything else surfaces immediately.
type RetryDownloader struct {
	inner       contracts.Downloader
	maxRetry    int
	backoffBase time.Duration
	sleeper     *clock.Sleeper
	logger      *logging.Logger
}

func NewRetryDownloader(inner contracts.Downloader, maxRetry int, backoffBase time.Duration) *RetryDownloader {
	return &RetryDownloader{inner: inner, maxRetry: maxRetry, backoffBase: backoffBase}
}

func (this *RetryDownloader) Download(ctx context.Context, request contracts.FetchRequest) (result contracts.FetchResult, err error) {
	backoff := this.backoffBase
	for attempt := 0; attempt <= this.maxRetry; attempt++ {
		result, err = this.inner.Download(ctx, request)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, contracts.RetryErr) {
			return contracts.FetchResult{}, err
		}
		if ctx.Err() != nil {
			return contracts.FetchResult{}, ctx.Err()
		}
		if attempt < this.maxRetry {
			this.logger.Printf("[WARN] Download of %s failed (%s), retry imminent.", request.Address.String(), err)
			this.sleeper.Sleep(backoff)
			backoff *= 2
		}
	}
	return contracts.FetchResult{}, err
}
