package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/framewright/provision/contracts"
	"github.com/framewright/provision/core"
)

func installCmd(configPath *string) *cobra.Command {
	var tier string

	cmd := &cobra.Command{
		Use:   "install [component...]",
		Short: "Download and install components",
		Long: `Install fetches every file a component's manifest declares, resuming
interrupted downloads, verifying each digest, extracting archives, and
running the post-install probe. With --tier, installs everything the
selected capability tier requires.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperations(*configPath, args, tier, func(app *application) starter {
				return app.orchestrator.Install
			})
		},
	}

	cmd.Flags().StringVarP(&tier, "tier", "t", "", "Install all components the tier requires")
	return cmd
}

func repairCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "repair <component>...",
		Short: "Re-fetch missing or corrupted files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperations(*configPath, args, "", func(app *application) starter {
				return app.orchestrator.Repair
			})
		},
	}
}

func removeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <component>...",
		Short: "Delete installed components from disk",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperations(*configPath, args, "", func(app *application) starter {
				return app.orchestrator.Remove
			})
		},
	}
}

type starter func(ctx context.Context, component contracts.ComponentManifest) (core.Operation, error)

func runOperations(configPath string, names []string, tier string, choose func(*application) starter) error {
	app, err := loadApplication(configPath)
	if err != nil {
		return err
	}

	if tier != "" {
		if app.resolver == nil {
			return fmt.Errorf("--tier requires tier_map_path in the config file")
		}
		names, err = app.resolver.RequiredComponents(tier, app.registry.Components())
		if err != nil {
			return err
		}
	}
	if len(names) == 0 {
		return fmt.Errorf("nothing to do: name at least one component or pass --tier")
	}

	start := choose(app)
	for _, name := range names {
		component, err := app.registry.Component(name)
		if err != nil {
			return err
		}
		err = runOperation(start, component)
		if err != nil {
			return err
		}
	}
	return nil
}

// runOperation drives one operation to its terminal event, echoing
// progress to stdout.
func runOperation(start starter, component contracts.ComponentManifest) error {
	operation, err := start(context.Background(), component)
	if err != nil {
		return err
	}

	var lastLine string
	for event := range operation.Events {
		if event.Terminal {
			if event.Status == contracts.StatusError {
				return fmt.Errorf("%s: %s", component.Title(), event.Error)
			}
			fmt.Printf("%s %s complete.\n", component.Title(), event.Kind)
			continue
		}
		line := progressLine(event)
		if line != lastLine {
			fmt.Println(line)
			lastLine = line
		}
	}
	return nil
}

func progressLine(event contracts.ProgressEvent) string {
	if event.CurrentFile == "" {
		return fmt.Sprintf("  %3d%%  %s", event.Percentage, event.Status)
	}
	return fmt.Sprintf("  %3d%%  %-12s %s", event.Percentage, event.Status, event.CurrentFile)
}
