package server

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smartystreets/assertions/should"
	"github.com/smartystreets/gunit"

	"github.com/framewright/provision/contracts"
	"github.com/framewright/provision/core"
	"github.com/framewright/provision/shell"
)

func TestServerFixture(t *testing.T) {
	gunit.Run(new(ServerFixture), t)
}

type ServerFixture struct {
	*gunit.Fixture

	payload    []byte
	fileSystem *shell.InMemoryFileSystem
	downloader *StubDownloader
	registry   *core.ManifestRegistry
	machine    *core.StateMachine
	broker     *core.ProgressBroker
	router     http.Handler
}

func (this *ServerFixture) Setup() {
	this.payload = bytes.Repeat([]byte("render"), 100)
	this.fileSystem = shell.NewInMemoryFileSystem()
	this.downloader = &StubDownloader{payloads: map[string][]byte{
		"/artifacts/renderer.bin": this.payload,
	}}

	this.registry = core.NewManifestRegistry(&StubManifestSource{document: this.manifestDocument()})
	this.So(this.registry.Load(), should.BeNil)

	prober := &StubProbeRunner{output: "ok"}
	verifier := core.NewIntegrityVerifier(this.fileSystem, sha256.New, prober, time.Second)
	this.machine = core.NewStateMachine()
	this.broker = core.NewProgressBroker()
	orchestrator := core.NewOrchestrator(
		this.fileSystem, this.downloader, &StubExtractor{}, prober,
		verifier, this.machine, this.broker, sha256.New,
		core.OrchestratorConfig{BackoffBase: time.Millisecond})

	metrics := NewMetrics(prometheus.NewRegistry())
	server := NewServer(this.registry, verifier, orchestrator, this.machine, this.broker, metrics)
	this.router = server.Router()
}

func (this *ServerFixture) manifestDocument() string {
	digest := sha256.Sum256(this.payload)
	return fmt.Sprintf(`{"components": [{
		"name": "Renderer",
		"version": "2.1",
		"is_required": true,
		"install_path": "/opt/framewright/renderer",
		"files": [{
			"filename": "renderer.bin",
			"source_url": "https://cdn.framewright.test/artifacts/renderer.bin",
			"sha256": "%s",
			"size_bytes": %d
		}]
	}]}`, hex.EncodeToString(digest[:]), len(this.payload))
}

func (this *ServerFixture) request(method, target string) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	this.router.ServeHTTP(recorder, httptest.NewRequest(method, target, nil))
	return recorder
}

func (this *ServerFixture) decode(recorder *httptest.ResponseRecorder) (body map[string]string) {
	_ = json.Unmarshal(recorder.Body.Bytes(), &body)
	return body
}

func (this *ServerFixture) awaitTerminal(operationID string) (terminal contracts.ProgressEvent) {
	events, err := this.broker.Subscribe(operationID)
	this.So(err, should.BeNil)
	for event := range events {
		terminal = event
	}
	return terminal
}

func (this *ServerFixture) TestManifestListing() {
	recorder := this.request(http.MethodGet, "/manifest")

	this.So(recorder.Code, should.Equal, http.StatusOK)
	this.So(recorder.Body.String(), should.ContainSubstring, `"Renderer"`)
	this.So(recorder.Header().Get("Content-Type"), should.ContainSubstring, "application/json")
}

func (this *ServerFixture) TestUnknownComponentIs404() {
	this.So(this.request(http.MethodGet, "/status/Nope").Code, should.Equal, http.StatusNotFound)
	this.So(this.request(http.MethodPost, "/install/Nope").Code, should.Equal, http.StatusNotFound)
	this.So(this.request(http.MethodGet, "/manual/Nope").Code, should.Equal, http.StatusNotFound)
}

func (this *ServerFixture) TestFirstStatusQueryDerivesPhaseFromDisk() {
	recorder := this.request(http.MethodGet, "/status/Renderer")

	this.So(recorder.Code, should.Equal, http.StatusOK)
	var state contracts.ComponentState
	this.So(json.Unmarshal(recorder.Body.Bytes(), &state), should.BeNil)
	this.So(state.Phase, should.Equal, contracts.PhaseNotInstalled)
	this.So(state.LastVerification, should.NotBeNil)
}

func (this *ServerFixture) TestVerifyReportsMissingFiles() {
	recorder := this.request(http.MethodGet, "/verify/Renderer")

	this.So(recorder.Code, should.Equal, http.StatusOK)
	var result contracts.VerificationResult
	this.So(json.Unmarshal(recorder.Body.Bytes(), &result), should.BeNil)
	this.So(result.IsValid, should.BeFalse)
	this.So(result.MissingFiles, should.Resemble, []string{"renderer.bin"})
}

func (this *ServerFixture) TestInstallAcceptedAndCompletes() {
	recorder := this.request(http.MethodPost, "/install/Renderer")

	this.So(recorder.Code, should.Equal, http.StatusAccepted)
	body := this.decode(recorder)
	this.So(body["operation_id"], should.NotBeBlank)
	this.So(body["events_url"], should.Equal, "/progress/"+body["operation_id"])

	terminal := this.awaitTerminal(body["operation_id"])
	this.So(terminal.Status, should.Equal, contracts.StatusComplete)
	this.So(this.machine.State("Renderer").Phase, should.Equal, contracts.PhaseInstalled)

	installed, err := this.fileSystem.ReadFile("/opt/framewright/renderer/renderer.bin")
	this.So(err, should.BeNil)
	this.So(installed, should.Resemble, this.payload)
}

func (this *ServerFixture) TestConcurrentOperationIsRejected() {
	this.downloader.gate = make(chan struct{})

	first := this.request(http.MethodPost, "/install/Renderer")
	this.So(first.Code, should.Equal, http.StatusAccepted)

	second := this.request(http.MethodPost, "/install/Renderer")
	this.So(second.Code, should.Equal, http.StatusConflict)

	close(this.downloader.gate)
	this.awaitTerminal(this.decode(first)["operation_id"])
}

func (this *ServerFixture) TestRemoveDeletesInstalledTree() {
	install := this.request(http.MethodPost, "/install/Renderer")
	this.awaitTerminal(this.decode(install)["operation_id"])

	remove := this.request(http.MethodDelete, "/Renderer")
	this.So(remove.Code, should.Equal, http.StatusAccepted)
	terminal := this.awaitTerminal(this.decode(remove)["operation_id"])

	this.So(terminal.Status, should.Equal, contracts.StatusComplete)
	_, err := this.fileSystem.ReadFile("/opt/framewright/renderer/renderer.bin")
	this.So(err, should.NotBeNil)
}

func (this *ServerFixture) TestManualInstructionsIncludeSourceAndDigest() {
	recorder := this.request(http.MethodGet, "/manual/Renderer")

	this.So(recorder.Code, should.Equal, http.StatusOK)
	this.So(recorder.Header().Get("Content-Type"), should.ContainSubstring, "text/plain")
	this.So(recorder.Body.String(), should.ContainSubstring, "https://cdn.framewright.test/artifacts/renderer.bin")
	this.So(recorder.Body.String(), should.ContainSubstring, "/opt/framewright/renderer")
}

func (this *ServerFixture) TestProgressForUnknownOperationIs404() {
	this.So(this.request(http.MethodGet, "/progress/nope").Code, should.Equal, http.StatusNotFound)
}

func (this *ServerFixture) TestWebsocketStreamsEventsUntilTerminal() {
	listener := httptest.NewServer(this.router)
	defer listener.Close()

	this.downloader.gate = make(chan struct{})
	accepted := this.request(http.MethodPost, "/install/Renderer")
	operationID := this.decode(accepted)["operation_id"]

	address := strings.Replace(listener.URL, "http", "ws", 1) + "/progress/" + operationID
	connection, _, err := websocket.DefaultDialer.Dial(address, nil)
	this.So(err, should.BeNil)
	defer func() { _ = connection.Close() }()

	close(this.downloader.gate)

	var sawTerminal bool
	for {
		var event contracts.ProgressEvent
		if connection.ReadJSON(&event) != nil {
			break
		}
		this.So(event.Component, should.Equal, "Renderer")
		if event.Terminal {
			sawTerminal = true
			this.So(event.Status, should.Equal, contracts.StatusComplete)
		}
	}
	this.So(sawTerminal, should.BeTrue)
}

func (this *ServerFixture) TestMetricsEndpointServes() {
	this.So(this.request(http.MethodGet, "/metrics").Code, should.Equal, http.StatusOK)
}

/////////////////////////////////////////////////

type StubManifestSource struct{ document string }

func (this *StubManifestSource) FetchManifest() ([]byte, error) {
	return []byte(this.document), nil
}

type StubDownloader struct {
	mutex    sync.Mutex
	payloads map[string][]byte
	gate     chan struct{}
}

func (this *StubDownloader) Download(ctx context.Context, request contracts.FetchRequest) (contracts.FetchResult, error) {
	this.mutex.Lock()
	gate := this.gate
	payload := this.payloads[request.Address.Path]
	this.mutex.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return contracts.FetchResult{}, ctx.Err()
		}
	}

	resumed := false
	if request.Offset > 0 && request.Offset < int64(len(payload)) {
		payload = payload[request.Offset:]
		resumed = true
	}
	return contracts.FetchResult{
		Body:    io.NopCloser(bytes.NewReader(payload)),
		Resumed: resumed,
		Length:  int64(len(payload)),
	}, nil
}

type StubExtractor struct{}

func (this *StubExtractor) Extract(archivePath, destination string) error { return nil }

type StubProbeRunner struct{ output string }

func (this *StubProbeRunner) Probe(ctx context.Context, command, workingDirectory string) (string, error) {
	return this.output, nil
}
