package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/bkyoung/llmsync/internal/domain"
	"github.com/bkyoung/llmsync/internal/usecase/prices"
	"github.com/bkyoung/llmsync/internal/usecase/sync"
)

// ErrVersionRequested indicates the user requested the CLI version and no further work should be done.
var ErrVersionRequested = errors.New("version requested")

// validComponents are the resource types the sync command can be limited to.
var validComponents = map[string]bool{
	"credentials": true,
	"models":      true,
	"aliases":     true,
	"fallbacks":   true,
}

// ConfigGenerator resolves declarative provider configuration into the flat
// artifacts the gateway understands.
type ConfigGenerator interface {
	Generate(configPath string) (domain.ResolvedConfig, error)
	GenerateToFile(configPath, outputPath string) error
}

// Reconciler converges remote gateway state toward a resolved configuration.
type Reconciler interface {
	SyncCredentials(ctx context.Context, credentials []domain.Credential) sync.Counts
	SyncModels(ctx context.Context, models []domain.ModelRegistration) sync.Counts
	SyncAliases(ctx context.Context, aliases map[string]string) sync.Counts
	SyncFallbacks(ctx context.Context, fallbacks []domain.FallbackRule) sync.Counts
	PurgeModels(ctx context.Context, dryRun bool) (sync.Counts, error)
}

// KeyProvisioner creates gateway users and API keys.
type KeyProvisioner interface {
	ProvisionKey(ctx context.Context, email, alias string) (string, error)
}

// PriceUpdater refreshes model pricing from the public catalog.
type PriceUpdater interface {
	Run(ctx context.Context, dryRun bool) (prices.Result, error)
}

// Arguments encapsulates IO writers injected from the host process.
type Arguments struct {
	OutWriter io.Writer
	ErrWriter io.Writer
	InReader  io.Reader
}

// Dependencies captures the collaborators for the CLI.
type Dependencies struct {
	Generator     ConfigGenerator
	NewReconciler func(force, prune bool) Reconciler
	Provisioner   KeyProvisioner
	PriceUpdater  PriceUpdater
	Args          Arguments

	// GatewayPreflight validates that the gateway is reachable in principle
	// (base URL and API key configured). Only commands about to issue network
	// calls run it; offline paths like gen-config and dry runs never do.
	GatewayPreflight func() error

	DefaultConfigFile string
	Version           string
}

// preflight runs the gateway preflight check when one is configured.
func (d Dependencies) preflight() error {
	if d.GatewayPreflight == nil {
		return nil
	}
	return d.GatewayPreflight()
}

// NewRootCommand constructs the root Cobra command.
func NewRootCommand(deps Dependencies) *cobra.Command {
	versionString := deps.Version
	if versionString == "" {
		versionString = "v0.0.0"
	}

	root := &cobra.Command{
		Use:   "llmsync",
		Short: "Declarative config synchronizer for a LiteLLM gateway",
	}
	root.SilenceUsage = true
	root.SilenceErrors = true

	outWriter := deps.Args.OutWriter
	if outWriter == nil {
		outWriter = os.Stdout
	}
	errWriter := deps.Args.ErrWriter
	if errWriter == nil {
		errWriter = os.Stderr
	}
	root.SetOut(outWriter)
	root.SetErr(errWriter)
	if deps.Args.InReader != nil {
		root.SetIn(deps.Args.InReader)
	}

	root.AddCommand(syncCommand(deps))
	root.AddCommand(genConfigCommand(deps))
	root.AddCommand(keyCommand(deps))
	root.AddCommand(pricesCommand(deps))
	root.AddCommand(modelsCommand(deps))

	var showVersion bool
	root.PersistentFlags().BoolVarP(&showVersion, "version", "v", false, "Show version and exit")
	versionHandler := func(cmd *cobra.Command, args []string) error {
		if showVersion {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), versionString)
			return ErrVersionRequested
		}
		return nil
	}
	root.PersistentPreRunE = versionHandler
	root.PreRunE = versionHandler
	root.RunE = func(cmd *cobra.Command, args []string) error {
		if err := versionHandler(cmd, args); err != nil {
			return err
		}
		return cmd.Help()
	}

	return root
}

func syncCommand(deps Dependencies) *cobra.Command {
	var configPath string
	var only []string
	var force bool
	var prune bool
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize credentials, models, aliases, and fallbacks to the gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			components, err := resolveComponents(only)
			if err != nil {
				return err
			}

			resolved, err := deps.Generator.Generate(configPath)
			if err != nil {
				return fmt.Errorf("resolve configuration: %w", err)
			}

			if dryRun {
				printPlan(cmd.OutOrStdout(), resolved, components)
				return nil
			}

			if err := deps.preflight(); err != nil {
				return err
			}

			reconciler := deps.NewReconciler(force, prune)
			ctx := cmd.Context()

			var total sync.Counts
			if components["credentials"] {
				total = total.Add(reconciler.SyncCredentials(ctx, resolved.Credentials))
			}
			if components["models"] {
				total = total.Add(reconciler.SyncModels(ctx, resolved.Models))
			}
			if components["aliases"] {
				total = total.Add(reconciler.SyncAliases(ctx, resolved.Aliases))
			}
			if components["fallbacks"] {
				total = total.Add(reconciler.SyncFallbacks(ctx, resolved.Fallbacks))
			}

			if total.Status() != sync.StatusSuccess {
				return fmt.Errorf("sync finished with %d failed resources", total.Failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", deps.DefaultConfigFile, "Path to the declarative configuration file")
	cmd.Flags().StringSliceVar(&only, "only", nil, "Limit sync to specific components (credentials, models, aliases, fallbacks)")
	cmd.Flags().BoolVar(&force, "force", false, "Replace existing resources instead of skipping them")
	cmd.Flags().BoolVar(&prune, "prune", false, "Delete remote credentials and models absent from the configuration")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Resolve and print the plan without contacting the gateway")

	return cmd
}

// resolveComponents validates the --only selection. An empty selection means
// every component; any unknown name aborts the run before network calls.
func resolveComponents(only []string) (map[string]bool, error) {
	if len(only) == 0 {
		return map[string]bool{"credentials": true, "models": true, "aliases": true, "fallbacks": true}, nil
	}

	selected := make(map[string]bool, len(only))
	for _, name := range only {
		name = strings.ToLower(strings.TrimSpace(name))
		if !validComponents[name] {
			return nil, fmt.Errorf("unknown component %q (valid: credentials, models, aliases, fallbacks)", name)
		}
		selected[name] = true
	}
	return selected, nil
}

func printPlan(out io.Writer, resolved domain.ResolvedConfig, components map[string]bool) {
	_, _ = fmt.Fprintln(out, "Dry run; nothing will be sent to the gateway.")
	if components["credentials"] {
		_, _ = fmt.Fprintf(out, "Would sync %d credentials:\n", len(resolved.Credentials))
		for _, cred := range resolved.Credentials {
			_, _ = fmt.Fprintf(out, "  %s\n", cred.Name())
		}
	}
	if components["models"] {
		_, _ = fmt.Fprintf(out, "Would sync %d models:\n", len(resolved.Models))
		for _, model := range resolved.Models {
			_, _ = fmt.Fprintf(out, "  %s (%s)\n", model.ModelName, model.CredentialName())
		}
	}
	if components["aliases"] {
		_, _ = fmt.Fprintf(out, "Would sync %d aliases\n", len(resolved.Aliases))
	}
	if components["fallbacks"] {
		_, _ = fmt.Fprintf(out, "Would sync %d fallback rules\n", len(resolved.Fallbacks))
	}
}

func genConfigCommand(deps Dependencies) *cobra.Command {
	var configPath string
	var outputPath string

	cmd := &cobra.Command{
		Use:   "gen-config",
		Short: "Resolve the declarative configuration and write the flat artifact file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := deps.Generator.GenerateToFile(configPath, outputPath); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", outputPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", deps.DefaultConfigFile, "Path to the declarative configuration file")
	cmd.Flags().StringVar(&outputPath, "output", "config.gen.json", "Path to write the resolved configuration")

	return cmd
}

func keyCommand(deps Dependencies) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage gateway users and API keys",
	}

	var alias string
	create := &cobra.Command{
		Use:   "create <email>",
		Short: "Create a user (if needed) and generate an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := deps.preflight(); err != nil {
				return err
			}
			key, err := deps.Provisioner.ProvisionKey(cmd.Context(), args[0], alias)
			if err != nil {
				return err
			}
			// The secret is printed exactly once, to stdout, for piping.
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
	create.Flags().StringVarP(&alias, "alias", "a", "", "API key alias (default: local part of the email)")

	cmd.AddCommand(create)
	return cmd
}

func pricesCommand(deps Dependencies) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prices",
		Short: "Manage model pricing",
	}

	var dryRun bool
	update := &cobra.Command{
		Use:   "update",
		Short: "Refresh model pricing from the public LiteLLM catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := deps.preflight(); err != nil {
				return err
			}
			result, err := deps.PriceUpdater.Run(cmd.Context(), dryRun)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Updated %d, skipped %d, failed %d\n",
				result.Updated, result.Skipped, result.Failed)
			if result.Failed > 0 {
				return fmt.Errorf("price refresh finished with %d failures", result.Failed)
			}
			return nil
		},
	}
	update.Flags().BoolVar(&dryRun, "dry-run", false, "Show which models would be updated without sending changes")

	cmd.AddCommand(update)
	return cmd
}

func modelsCommand(deps Dependencies) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Manage model registrations",
	}

	var yes bool
	var dryRun bool
	purge := &cobra.Command{
		Use:   "purge",
		Short: "Delete every model registration on the gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Even a dry run lists the remote registrations.
			if err := deps.preflight(); err != nil {
				return err
			}
			if !dryRun && !yes {
				confirmed, err := confirmPurge(cmd)
				if err != nil {
					return err
				}
				if !confirmed {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
					return nil
				}
			}

			reconciler := deps.NewReconciler(false, false)
			counts, err := reconciler.PurgeModels(cmd.Context(), dryRun)
			if err != nil {
				return err
			}
			if counts.Failed > 0 {
				return fmt.Errorf("purge finished with %d failures", counts.Failed)
			}
			return nil
		},
	}
	purge.Flags().BoolVar(&yes, "yes", false, "Skip the interactive confirmation")
	purge.Flags().BoolVar(&dryRun, "dry-run", false, "List the models that would be deleted")

	cmd.AddCommand(purge)
	return cmd
}

// confirmPurge prompts on an interactive terminal. Non-interactive runs must
// pass --yes explicitly.
func confirmPurge(cmd *cobra.Command) (bool, error) {
	stdin, isFile := cmd.InOrStdin().(*os.File)
	if !isFile || !term.IsTerminal(int(stdin.Fd())) {
		return false, errors.New("refusing to purge without confirmation; pass --yes to proceed")
	}

	_, _ = fmt.Fprint(cmd.OutOrStdout(), "Delete ALL model registrations from the gateway? [y/N]: ")
	reader := bufio.NewReader(stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
