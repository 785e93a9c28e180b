package metacache

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// NewCommand creates a Cobra command tree for the metadata cache.
// The returned command should be added to a parent CLI's root command.
//
// Commands provided:
//   - metadata sync <path>... [--force] [--no-touch]
//   - metadata info <path>
//   - metadata list
//   - metadata keywords <lora>...
//   - metadata hash <path>
//   - metadata pull <path>... --dir <dest>
//
// Global flags: --json, --quiet
func NewCommand(cfg Config, opts ...ManagerOption) *cobra.Command {
	var (
		jsonOutput bool
		quiet      bool
	)

	// Manager will be created in PersistentPreRunE
	var mgr Manager

	cmd := &cobra.Command{
		Use:   "metadata",
		Short: "Manage artifact metadata",
		Long:  "Synchronize, inspect, and use registry metadata for local model artifacts.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Skip manager creation for help commands
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}

			var err error
			mgr, err = NewManager(cfg, opts...)
			if err != nil {
				return fmt.Errorf("failed to initialize manager: %w", err)
			}
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	cmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress non-essential output")

	cmd.AddCommand(syncCmd(&mgr, &jsonOutput, &quiet))
	cmd.AddCommand(infoCmd(&mgr, &jsonOutput))
	cmd.AddCommand(listCmd(&mgr, &jsonOutput))
	cmd.AddCommand(keywordsCmd(&mgr))
	cmd.AddCommand(hashCmd(&mgr))
	cmd.AddCommand(pullCmd(&mgr, &quiet))

	return cmd
}

func syncCmd(mgr *Manager, jsonOutput, quiet *bool) *cobra.Command {
	var (
		force   bool
		noTouch bool
	)

	cmd := &cobra.Command{
		Use:   "sync <path>...",
		Short: "Synchronize metadata for artifacts",
		Long:  "Ensure cached registry metadata for the given artifact files is fresh.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var opts []SyncOption
			if force {
				opts = append(opts, WithForce())
			}
			if noTouch {
				opts = append(opts, WithoutTouch())
			}

			var results []CachedArtifact
			for _, path := range args {
				rec, err := (*mgr).Synchronize(ctx, path, opts...)
				if err != nil {
					return err
				}
				results = append(results, CachedArtifact{Path: path, Record: rec})

				if !*jsonOutput && !*quiet {
					state := "unknown to registry"
					if rec.RegistryKnown {
						state = rec.ModelName
						if rec.UpdateAvailable {
							state += " (update available)"
						}
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", path, state)
				}
			}

			if *jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Force a registry lookup even if metadata is fresh")
	cmd.Flags().BoolVar(&noTouch, "no-touch", false, "Do not update the last-used timestamp")
	return cmd
}

func infoCmd(mgr *Manager, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "info <path>",
		Short: "Show cached metadata for an artifact",
		Long:  "Show the cached metadata record for an artifact file without contacting the registry.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec := (*mgr).Record(args[0])
			return outputRecord(cmd.OutOrStdout(), args[0], rec, *jsonOutput)
		},
	}
}

func listCmd(mgr *Manager, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cached artifacts",
		Long:  "List every cached artifact path with its metadata record.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return outputList(cmd.OutOrStdout(), (*mgr).List(), *jsonOutput)
		},
	}
}

func keywordsCmd(mgr *Manager) *cobra.Command {
	return &cobra.Command{
		Use:   "keywords <lora>...",
		Short: "Collect trigger keywords for a LoRA stack",
		Long: "Collect the deduplicated trigger keywords for the given LoRAs. " +
			"Each argument is name, name:weight, or name:model_weight:clip_weight.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var stack LoraStack
			for _, arg := range args {
				ref, err := ParseLoraRef(arg)
				if err != nil {
					return fmt.Errorf("%q: %w", arg, err)
				}
				stack = append(stack, ref)
			}

			keywords, err := (*mgr).KeywordsForStack(ctx, stack)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), keywords)
			return nil
		},
	}
}

func hashCmd(mgr *Manager) *cobra.Command {
	return &cobra.Command{
		Use:   "hash <path>",
		Short: "Print an artifact's content hash",
		Long:  "Print the full SHA-256 content hash of an artifact file, computing and caching it if needed.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := (*mgr).CachedHash(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func pullCmd(mgr *Manager, quiet *bool) *cobra.Command {
	var (
		destDir     string
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "pull <path>...",
		Short: "Download artifacts from the registry",
		Long:  "Download the registry copies of the given cached artifacts into a destination directory, verifying content hashes.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			opts := []FetchOption{WithConcurrency(concurrency)}
			if !*quiet {
				// The callback runs on download worker goroutines sharing
				// one writer.
				var outMu sync.Mutex
				out := cmd.OutOrStdout()
				opts = append(opts, WithProgress(func(p FetchProgress) {
					if p.BytesReceived == 0 && p.BytesTotal == 0 {
						outMu.Lock()
						fmt.Fprintf(out, "Downloaded %s (%d/%d)\n", p.Path, p.Completed, p.Total)
						outMu.Unlock()
					}
				}))
			}

			if err := (*mgr).Fetch(ctx, args, destDir, opts...); err != nil {
				return err
			}

			if !*quiet {
				fmt.Fprintf(cmd.OutOrStdout(), "Fetched %d artifact(s) into %s\n", len(args), destDir)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&destDir, "dir", "d", ".", "Destination directory")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", DefaultConcurrency, "Concurrent downloads")
	return cmd
}

// Output helpers

func outputRecord(w io.Writer, path string, rec ArtifactRecord, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(CachedArtifact{Path: path, Record: rec})
	}

	fmt.Fprintf(w, "Path:         %s\n", path)
	fmt.Fprintf(w, "Hash:         %s\n", rec.Hash)
	fmt.Fprintf(w, "Known:        %v\n", rec.RegistryKnown)
	if rec.RegistryKnown {
		fmt.Fprintf(w, "Model:        %s (%s)\n", rec.ModelName, rec.ModelType)
		fmt.Fprintf(w, "Version:      %s\n", rec.VersionName)
		fmt.Fprintf(w, "Base model:   %s\n", rec.BaseModel)
		fmt.Fprintf(w, "Update:       %v\n", rec.UpdateAvailable)
		if len(rec.TrainedWords) > 0 {
			fmt.Fprintf(w, "Keywords:     %s\n", strings.Join(rec.TrainedWords, ", "))
		}
	}
	if !rec.LastUsed.IsZero() {
		fmt.Fprintf(w, "Last used:    %s\n", rec.LastUsed.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func outputList(w io.Writer, artifacts []CachedArtifact, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(artifacts)
	}

	if len(artifacts) == 0 {
		fmt.Fprintln(w, "No artifacts cached")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tHASH\tMODEL\tBASE\tUPDATE")
	for _, a := range artifacts {
		model := a.Record.ModelName
		if !a.Record.RegistryKnown {
			model = "-"
		}
		update := ""
		if a.Record.UpdateAvailable {
			update = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			a.Path,
			ShortHash(a.Record.Hash),
			model,
			a.Record.BaseModel,
			update,
		)
	}
	return tw.Flush()
}
