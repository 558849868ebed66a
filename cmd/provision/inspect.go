package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/framewright/provision/contracts"
)

func verifyCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <component>...",
		Short: "Check installed files against manifest digests",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApplication(*configPath)
			if err != nil {
				return err
			}
			broken := 0
			for _, name := range args {
				component, err := app.registry.Component(name)
				if err != nil {
					return err
				}
				result := app.verifier.Verify(context.Background(), component)
				printVerification(component, result)
				if !result.IsValid {
					broken++
				}
			}
			if broken > 0 {
				return fmt.Errorf("%d component(s) need attention", broken)
			}
			return nil
		},
	}
}

func statusCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Summarize the install state of every component",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApplication(*configPath)
			if err != nil {
				return err
			}
			for _, component := range app.registry.Components() {
				result := app.verifier.Verify(context.Background(), component)
				app.machine.SetVerification(component.Name, result)
				state := app.machine.State(component.Name)
				fmt.Printf("%-24s %-14s %d/%d files intact\n",
					component.Name, state.Phase,
					result.FileCount-len(result.MissingFiles)-len(result.CorruptedFiles),
					result.FileCount)
			}
			return nil
		},
	}
}

func manifestCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "manifest",
		Short: "List the components the manifest declares",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApplication(*configPath)
			if err != nil {
				return err
			}
			for _, component := range app.registry.Components() {
				required := "optional"
				if component.IsRequired {
					required = "required"
				}
				fmt.Printf("%-24s %-10s %-8s %d file(s), %d bytes\n",
					component.Name, component.Version, required,
					len(component.Files), component.TotalSizeBytes())
			}
			return nil
		},
	}
}

func loadApplication(configPath string) (*application, error) {
	config, err := ParseConfig(configPath)
	if err != nil {
		return nil, err
	}
	return buildApplication(config)
}

func printVerification(component contracts.ComponentManifest, result contracts.VerificationResult) {
	if result.IsValid {
		fmt.Printf("%s OK (%d files)\n", component.Title(), result.FileCount)
		return
	}
	fmt.Printf("%s INVALID\n", component.Title())
	for _, filename := range result.MissingFiles {
		fmt.Printf("  missing:   %s\n", filename)
	}
	for _, filename := range result.CorruptedFiles {
		fmt.Printf("  corrupted: %s\n", filename)
	}
	if result.ProbeResult != "" && result.FilesIntact() {
		fmt.Printf("  probe:     %s\n", result.ProbeResult)
	}
}
