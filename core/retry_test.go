package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/smartystreets/assertions/should"
	"github.com/smartystreets/clock"
	"github.com/smartystreets/gunit"
	"github.com/smartystreets/logging"

	"github.com/framewright/provision/contracts"
)

func TestRetryDownloaderFixture(t *testing.T) {
	gunit.Run(new(RetryDownloaderFixture), t)
}

type RetryDownloaderFixture struct {
	*gunit.Fixture

	inner      *FakeFlakyDownloader
	downloader *RetryDownloader
}

func (this *RetryDownloaderFixture) Setup() {
	this.inner = &FakeFlakyDownloader{}
	this.downloader = NewRetryDownloader(this.inner, 3, 2*time.Second)
	this.downloader.sleeper = clock.StayAwake()
	this.downloader.logger = logging.Capture()
}

func (this *RetryDownloaderFixture) download() error {
	_, err := this.downloader.Download(context.Background(), contracts.FetchRequest{})
	return err
}

func (this *RetryDownloaderFixture) TestFirstAttemptSucceeds() {
	this.So(this.download(), should.BeNil)
	this.So(this.inner.attempts, should.Equal, 1)
}

func (this *RetryDownloaderFixture) TestRetryableFailuresBackOffExponentially() {
	this.inner.failures = 4 // exceeds maxRetry

	err := this.download()

	this.So(errors.Is(err, contracts.RetryErr), should.BeTrue)
	this.So(this.inner.attempts, should.Equal, 4)
	this.So(this.downloader.sleeper.Naps, should.Resemble, []time.Duration{
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
	})
}

func (this *RetryDownloaderFixture) TestEventualSuccessAfterRetries() {
	this.inner.failures = 2

	this.So(this.download(), should.BeNil)
	this.So(this.inner.attempts, should.Equal, 3)
}

func (this *RetryDownloaderFixture) TestPermanentFailureSurfacesImmediately() {
	this.inner.permanent = errors.New("404 not found")

	err := this.download()

	this.So(err, should.Equal, this.inner.permanent)
	this.So(this.inner.attempts, should.Equal, 1)
}

/////////////////////////////////////////////////////////////////////////////

type FakeFlakyDownloader struct {
	attempts  int
	failures  int
	permanent error
}

func (this *FakeFlakyDownloader) Download(_ context.Context, _ contracts.FetchRequest) (contracts.FetchResult, error) {
	this.attempts++
	if this.permanent != nil {
		return contracts.FetchResult{}, this.permanent
	}
	if this.attempts <= this.failures {
		return contracts.FetchResult{}, fmt.Errorf("%w: connection reset", contracts.RetryErr)
	}
	return contracts.FetchResult{}, nil
}
