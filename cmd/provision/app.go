package main

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/framewright/provision/contracts"
	"github.com/framewright/provision/core"
	"github.com/framewright/provision/shell"
)

const manifestFetchTimeout = 30 * time.Second

// application wires the engine's pieces together once per invocation.
type application struct {
	config       Config
	registry     *core.ManifestRegistry
	verifier     *core.IntegrityVerifier
	machine      *core.StateMachine
	broker       *core.ProgressBroker
	orchestrator *core.Orchestrator
	resolver     *core.TierResolver
}

func buildApplication(config Config) (*application, error) {
	fileSystem := shell.NewDiskFileSystem()
	downloader := shell.NewHTTPDownloader(shell.NewHTTPClient(), config.StallTimeout())

	var source contracts.ManifestSource
	if config.ManifestPath != "" {
		source = shell.NewFileManifestSource(fileSystem, config.ManifestPath)
	} else {
		reliable := core.NewRetryDownloader(downloader, config.MaxRetry, config.Backoff())
		source = shell.NewRemoteManifestSource(reliable, *config.ManifestAddress.Value(), manifestFetchTimeout)
	}

	registry := core.NewManifestRegistry(source)
	err := registry.Load()
	if err != nil {
		return nil, err
	}

	prober := shell.NewShellProbeRunner()
	verifier := core.NewIntegrityVerifier(fileSystem, sha256.New, prober, config.ProbeTimeout())
	machine := core.NewStateMachine()
	broker := core.NewProgressBroker()
	orchestrator := core.NewOrchestrator(
		fileSystem, downloader, shell.NewArchiveExtractor(), prober,
		verifier, machine, broker, sha256.New,
		core.OrchestratorConfig{
			MaxRetry:               config.MaxRetry,
			BackoffBase:            config.Backoff(),
			ProbeTimeout:           config.ProbeTimeout(),
			MaxConcurrentDownloads: config.MaxConcurrentDownloads,
		})

	this := &application{
		config:       config,
		registry:     registry,
		verifier:     verifier,
		machine:      machine,
		broker:       broker,
		orchestrator: orchestrator,
	}
	if config.TierMapPath != "" {
		this.resolver, err = loadTierResolver(fileSystem, config.TierMapPath)
		if err != nil {
			return nil, err
		}
	}
	return this, nil
}

func loadTierResolver(fileSystem contracts.FileReader, path string) (*core.TierResolver, error) {
	raw, err := fileSystem.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not open tier map: %w", err)
	}
	tiers, err := core.ParseTierMap(raw)
	if err != nil {
		return nil, err
	}
	return core.NewTierResolver(tiers), nil
}
