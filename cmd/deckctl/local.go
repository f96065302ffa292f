package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/yungbote/deckrebuild-backend/internal/domain/rebuild"
	"github.com/yungbote/deckrebuild-backend/internal/modules/rebuild/apply"
	"github.com/yungbote/deckrebuild-backend/internal/modules/rebuild/extract"
	"github.com/yungbote/deckrebuild-backend/internal/modules/rebuild/oracle"
)

func newExtractCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "extract <deck.pptx>",
		Short: "List the content elements of a deck as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			elements, err := extract.Elements(data)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), elements)
		},
	}
}

func newPlaceholdersCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "placeholders <template.potx>",
		Short: "List the layout placeholders of a template as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			placeholders, err := extract.Placeholders(data)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), placeholders)
		},
	}
}

func newPlanCmd(opts *rootOptions) *cobra.Command {
	var provider, out string
	cmd := &cobra.Command{
		Use:   "plan <deck.pptx> <template.potx>",
		Short: "Ask the oracle for a mapping and validate it",
		Long: `Extracts both inventories, calls the configured oracle provider
(--provider, then ORACLE_PROVIDER, then mock) and writes the validated
mapping. A rejected mapping is reported with its validation stage and
nothing is written.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			elements, placeholders, err := loadInventories(args[0], args[1])
			if err != nil {
				return err
			}
			cfg := oracle.LoadConfig()
			if cmd.Flags().Changed("provider") || os.Getenv("ORACLE_PROVIDER") == "" {
				cfg.Provider = provider
			}
			adapter, err := oracle.Open(cmd.Context(), opts.log, oracle.DefaultRegistry(), cfg)
			if err != nil {
				return err
			}
			prop, err := adapter.Propose(cmd.Context(), elements, placeholders)
			if err != nil {
				return fmt.Errorf("%s: %w", rebuild.Classify(err), err)
			}
			return writeJSONTo(cmd, out, prop.Result)
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "mock", "oracle provider ("+fmt.Sprint(oracle.DefaultRegistry().Names())+")")
	cmd.Flags().StringVarP(&out, "output", "o", "", "write the mapping here instead of stdout")
	return cmd
}

func newValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <mapping.json> <deck.pptx> <template.potx>",
		Short: "Check a stored mapping against a deck and template",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := validateMapping(opts, args[0], args[1], args[2])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d slides, %d skipped elements, %d warnings\n",
				len(result.SlideMappings), len(result.SkippedElements), len(result.Warnings))
			return nil
		},
	}
}

func newApplyCmd(opts *rootOptions) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "apply <mapping.json> <deck.pptx> <template.potx>",
		Short: "Validate a mapping and write the rebuilt deck",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := validateMapping(opts, args[0], args[1], args[2])
			if err != nil {
				return err
			}
			deck, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			tpl, err := os.ReadFile(args[2])
			if err != nil {
				return err
			}
			built, err := apply.New(opts.log).Apply(cmd.Context(), deck, tpl, result)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, built.Data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s: %d slides, %d mapped, %d skipped\n",
				out, built.Stats.SlidesCreated, built.Stats.ElementsMapped, built.Stats.ElementsSkipped)
			for _, w := range built.Stats.Warnings {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "rebuilt.pptx", "output deck path")
	return cmd
}

func loadInventories(deckPath, templatePath string) ([]rebuild.DeckElement, []rebuild.TemplatePlaceholder, error) {
	deck, err := os.ReadFile(deckPath)
	if err != nil {
		return nil, nil, err
	}
	tpl, err := os.ReadFile(templatePath)
	if err != nil {
		return nil, nil, err
	}
	elements, err := extract.Elements(deck)
	if err != nil {
		return nil, nil, err
	}
	placeholders, err := extract.Placeholders(tpl)
	if err != nil {
		return nil, nil, err
	}
	return elements, placeholders, nil
}

// validateMapping runs the oracle's validation stages without calling a provider.
func validateMapping(opts *rootOptions, mappingPath, deckPath, templatePath string) (*rebuild.MappingResult, error) {
	raw, err := os.ReadFile(mappingPath)
	if err != nil {
		return nil, err
	}
	elements, placeholders, err := loadInventories(deckPath, templatePath)
	if err != nil {
		return nil, err
	}
	cfg := oracle.LoadConfig()
	cfg.Provider = "mock"
	adapter, err := oracle.NewAdapter(opts.log, cfg, oracle.Mock{}, nil)
	if err != nil {
		return nil, err
	}
	result, err := adapter.Validate(string(raw), elements, placeholders)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", rebuild.Classify(err), err)
	}
	return result, nil
}

func writeJSONTo(cmd *cobra.Command, path string, v any) error {
	if path == "" {
		return writeJSON(cmd.OutOrStdout(), v)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := writeJSON(f, v); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
