// Command corectl is the operator CLI for the interoperability core:
// feeding a file to an inbound endpoint as if it arrived on the wire, and
// driving a scenario template through an endpoint as a timed replay.
// Grounded on the reference implementation's cobra root-command layout
// (one subcommand per operator action, flags on the leaf command).
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"hl7-interop-bridge/internal/bootstrap"
	"hl7-interop-bridge/internal/codec"
	"hl7-interop-bridge/internal/domain"
	coreerrors "hl7-interop-bridge/internal/errors"
	"hl7-interop-bridge/internal/scenario"
)

// Exit codes per the core's CLI contract.
const (
	exitSuccess          = 0
	exitValidationError  = 1
	exitTransportError   = 2
	exitConfigurationErr = 3
)

func main() {
	root := &cobra.Command{
		Use:   "corectl",
		Short: "Operate the HL7 v2 / FHIR interoperability core",
	}

	root.AddCommand(ingestCmd())
	root.AddCommand(replayCmd())

	if err := root.Execute(); err != nil {
		os.Exit(exitConfigurationErr)
	}
}

func ingestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <endpoint-id> <file>",
		Short: "Process a file as if received on the given endpoint",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			os.Exit(runIngest(args[0], args[1]))
			return nil
		},
	}
}

func runIngest(endpointID, path string) int {
	ctx := context.Background()
	container, stop, err := bootstrap.Start(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "corectl: %v\n", err)
		return exitConfigurationErr
	}
	defer stop(ctx)

	endpoint, err := container.Endpoints.FindByID(ctx, endpointID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "corectl: loading endpoint: %v\n", err)
		return exitConfigurationErr
	}
	if endpoint == nil {
		fmt.Fprintf(os.Stderr, "corectl: no endpoint configured with id %q\n", endpointID)
		return exitConfigurationErr
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "corectl: reading %s: %v\n", path, err)
		return exitConfigurationErr
	}

	ack, err := container.Pipeline.Process(ctx, raw, endpoint)
	if err != nil {
		fmt.Fprintf(os.Stderr, "corectl: processing message: %v\n", err)
		return exitTransportError
	}

	os.Stdout.Write(ack)
	fmt.Fprintln(os.Stdout)

	msg, err := codec.ParseMessage(ack)
	if err != nil {
		return exitValidationError
	}
	msa := msg.Segment("MSA")
	if msa == nil || msa.FieldRaw(1) != "AA" {
		return exitValidationError
	}
	return exitSuccess
}

func replayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <template-key> <endpoint-id>",
		Short: "Launch a scenario run against an endpoint",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dryRun, _ := cmd.Flags().GetBool("dry-run")
			ippPrefix, _ := cmd.Flags().GetString("ipp-prefix")
			ndaPrefix, _ := cmd.Flags().GetString("nda-prefix")
			os.Exit(runReplay(args[0], args[1], dryRun, ippPrefix, ndaPrefix))
			return nil
		},
	}
	cmd.Flags().Bool("dry-run", false, "render and log steps without transmitting")
	cmd.Flags().String("ipp-prefix", "", "override the generated IPP's prefix pattern for this run")
	cmd.Flags().String("nda-prefix", "", "override the generated NDA's prefix pattern for this run")
	return cmd
}

func runReplay(templateKey, endpointID string, dryRun bool, ippPrefix, ndaPrefix string) int {
	ctx := context.Background()
	container, stop, err := bootstrap.Start(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "corectl: %v\n", err)
		return exitConfigurationErr
	}
	defer stop(ctx)

	template, err := container.Templates.FindByKey(ctx, templateKey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "corectl: loading template: %v\n", err)
		return exitConfigurationErr
	}
	if template == nil {
		fmt.Fprintf(os.Stderr, "corectl: no template with key %q\n", templateKey)
		return exitConfigurationErr
	}

	endpoint, err := container.Endpoints.FindByID(ctx, endpointID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "corectl: loading endpoint: %v\n", err)
		return exitConfigurationErr
	}
	if endpoint == nil {
		fmt.Fprintf(os.Stderr, "corectl: no endpoint configured with id %q\n", endpointID)
		return exitConfigurationErr
	}

	protocol := domain.ProtocolHL7v2
	if endpoint.Type == domain.EndpointFHIRClient {
		protocol = domain.ProtocolFHIR
	}

	schedule, err := scenario.Schedule(template, time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "corectl: scheduling steps: %v\n", err)
		return exitConfigurationErr
	}

	result, err := container.Materializer.Materialize(ctx, template, schedule, protocol, endpoint.OwningEntityID, endpoint, scenario.MaterializeOptions{
		IPPPrefixOverride: ippPrefix,
		NDAPrefixOverride: ndaPrefix,
	})
	if err != nil {
		if ce, ok := err.(*coreerrors.CoreError); ok {
			fmt.Fprintf(os.Stderr, "corectl: materializing template: %s: %s\n", ce.Kind, ce.Message)
			return exitValidationError
		}
		fmt.Fprintf(os.Stderr, "corectl: materializing template: %v\n", err)
		return exitConfigurationErr
	}

	run := &domain.ScenarioRun{
		ID:                uuid.NewString(),
		TemplateKey:       template.Key,
		EndpointID:        endpoint.ID,
		Protocol:          protocol,
		JuridicalEntityID: endpoint.OwningEntityID,
		IPPPrefixOverride: ippPrefix,
		NDAPrefixOverride: ndaPrefix,
		GeneratedIPP:      result.IPP,
		GeneratedNDA:      result.NDA,
		GeneratedVN:       result.VN,
		DryRun:            dryRun,
	}

	container.Replayer.Replay(ctx, run, endpoint, result.Messages)

	fmt.Printf("run %s: %s\n", run.ID, run.AggregateStatus)
	for _, step := range run.StepResults {
		fmt.Printf("  step %d: %s %s\n", step.StepOrderIndex, step.Status, step.Message)
	}

	switch run.AggregateStatus {
	case domain.RunSuccess:
		return exitSuccess
	case domain.RunPartial, domain.RunError:
		return exitTransportError
	default:
		return exitTransportError
	}
}
