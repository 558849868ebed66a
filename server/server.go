package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smartystreets/logging"

	"github.com/framewright/provision/contracts"
	"github.com/framewright/provision/core"
)

// Server is the HTTP facade over the provisioning engine. The engine is
// fully usable without it; wizard and dashboard layers are subscribers,
// never owners of state.
type Server struct {
	registry     *core.ManifestRegistry
	verifier     *core.IntegrityVerifier
	orchestrator *core.Orchestrator
	machine      *core.StateMachine
	broker       *core.ProgressBroker
	metrics      *Metrics
	logger       *logging.Logger
}

func NewServer(
	registry *core.ManifestRegistry,
	verifier *core.IntegrityVerifier,
	orchestrator *core.Orchestrator,
	machine *core.StateMachine,
	broker *core.ProgressBroker,
	metrics *Metrics,
) *Server {
	return &Server{
		registry:     registry,
		verifier:     verifier,
		orchestrator: orchestrator,
		machine:      machine,
		broker:       broker,
		metrics:      metrics,
	}
}

func (this *Server) Router() http.Handler {
	router := chi.NewRouter()
	router.Get("/manifest", this.manifest)
	router.Get("/status/{name}", this.status)
	router.Get("/verify/{name}", this.verify)
	router.Post("/install/{name}", this.install)
	router.Post("/repair/{name}", this.repair)
	router.Delete("/{name}", this.remove)
	router.Get("/manual/{name}", this.manual)
	router.Get("/progress/{operation}", this.progress)
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return router
}

func (this *Server) manifest(response http.ResponseWriter, request *http.Request) {
	writeJSON(response, http.StatusOK, this.registry.Components())
}

func (this *Server) component(response http.ResponseWriter, request *http.Request) (contracts.ComponentManifest, bool) {
	name := chi.URLParam(request, "name")
	component, err := this.registry.Component(name)
	if err != nil {
		writeError(response, http.StatusNotFound, err)
		return contracts.ComponentManifest{}, false
	}
	return component, true
}

// status reports the component's phase plus its last verification. A
// component queried for the first time since process start gets a fresh
// disk check, which is how phases are re-derived after a restart.
func (this *Server) status(response http.ResponseWriter, request *http.Request) {
	component, ok := this.component(response, request)
	if !ok {
		return
	}
	state := this.machine.State(component.Name)
	if state.LastVerification == nil && !state.Phase.InFlight() {
		result := this.verifier.Verify(request.Context(), component)
		this.machine.SetVerification(component.Name, result)
		this.metrics.Verified(result.IsValid)
		state = this.machine.State(component.Name)
	}
	writeJSON(response, http.StatusOK, state)
}

// verify forces a fresh disk check, bypassing any cached result.
func (this *Server) verify(response http.ResponseWriter, request *http.Request) {
	component, ok := this.component(response, request)
	if !ok {
		return
	}
	result := this.verifier.Verify(request.Context(), component)
	this.machine.SetVerification(component.Name, result)
	this.metrics.Verified(result.IsValid)
	writeJSON(response, http.StatusOK, result)
}

func (this *Server) install(response http.ResponseWriter, request *http.Request) {
	this.launch(response, request, this.orchestrator.Install)
}

func (this *Server) repair(response http.ResponseWriter, request *http.Request) {
	this.launch(response, request, this.orchestrator.Repair)
}

func (this *Server) remove(response http.ResponseWriter, request *http.Request) {
	this.launch(response, request, this.orchestrator.Remove)
}

type operationStarter func(ctx context.Context, component contracts.ComponentManifest) (core.Operation, error)

func (this *Server) launch(response http.ResponseWriter, request *http.Request, start operationStarter) {
	component, ok := this.component(response, request)
	if !ok {
		return
	}

	// Operations outlive the HTTP request that started them.
	operation, err := start(context.Background(), component)
	if errors.Is(err, contracts.OperationInProgress) {
		writeError(response, http.StatusConflict, err)
		return
	}
	if err != nil {
		writeError(response, http.StatusInternalServerError, err)
		return
	}

	go this.watch(operation)
	writeJSON(response, http.StatusAccepted, map[string]string{
		"operation_id": operation.ID,
		"component":    component.Name,
		"events_url":   "/progress/" + operation.ID,
	})
}

// watch drains the operation's primary event stream to drive metrics.
// Browser subscribers attach separately through the broker.
func (this *Server) watch(operation core.Operation) {
	this.metrics.OperationStarted()
	var kind contracts.OperationKind
	var outcome string
	var peakBytes int64
	for event := range operation.Events {
		kind = event.Kind
		if event.BytesDownloaded > peakBytes {
			peakBytes = event.BytesDownloaded
		}
		if event.Terminal {
			outcome = event.Status
		}
	}
	this.metrics.BytesDownloaded(peakBytes)
	this.metrics.OperationFinished(string(kind), outcome)
}

// manual renders human-readable fallback instructions for air-gapped
// hosts. Purely informational; the state machine is not involved.
func (this *Server) manual(response http.ResponseWriter, request *http.Request) {
	component, ok := this.component(response, request)
	if !ok {
		return
	}

	var builder strings.Builder
	fmt.Fprintf(&builder, "Manual installation for %s\n\n", component.Title())
	fmt.Fprintf(&builder, "Download the following files and place them under %s:\n\n", component.InstallPath)
	for _, file := range component.Files {
		fmt.Fprintf(&builder, "  %s\n    from:   %s\n    sha256: %s\n    size:   %d bytes\n",
			file.Filename, file.SourceURL.Value().String(), file.SHA256, file.SizeBytes)
		if file.IsArchive() {
			fmt.Fprintf(&builder, "    extract into: %s\n", file.ExtractPath)
		}
		builder.WriteString("\n")
	}
	if component.PostInstallProbe != "" {
		fmt.Fprintf(&builder, "Afterwards, confirm the install by running:\n  %s\n\n", component.PostInstallProbe)
	}
	if component.ManualNotes != "" {
		fmt.Fprintf(&builder, "Notes: %s\n", component.ManualNotes)
	}

	response.Header().Set("Content-Type", "text/plain; charset=utf-8")
	response.WriteHeader(http.StatusOK)
	_, _ = response.Write([]byte(builder.String()))
}

func writeJSON(response http.ResponseWriter, status int, body interface{}) {
	response.Header().Set("Content-Type", "application/json; charset=utf-8")
	response.WriteHeader(status)
	_ = json.NewEncoder(response).Encode(body)
}

func writeError(response http.ResponseWriter, status int, err error) {
	writeJSON(response, status, map[string]string{"error": err.Error()})
}
