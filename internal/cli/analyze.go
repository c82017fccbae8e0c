package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/raine/appraisal-lots/internal/analyzer"
	"github.com/raine/appraisal-lots/internal/imageset"
	"github.com/raine/appraisal-lots/internal/llm"
	"github.com/raine/appraisal-lots/internal/lot"
	"github.com/raine/appraisal-lots/internal/metrics"
	"github.com/raine/appraisal-lots/internal/pipeline"
	"github.com/raine/appraisal-lots/internal/storage"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type analyzeOptions struct {
	modes       []string
	language    string
	currency    string
	file        string
	format      string
	concurrency int
	noCache     bool
	metadata    map[string]string
	metricsFile string
}

func newAnalyzeCmd(root *rootOptions) *cobra.Command {
	opts := &analyzeOptions{}
	cmd := &cobra.Command{
		Use:   "analyze [image...]",
		Short: "Analyze images into appraisal lots",
		Long: `Analyze a batch of images and print the resulting lots.

Images can be http(s) URLs, file:// URLs, local paths or data URIs. Several
--mode flags run the modes over the same images and deduplicate the combined
candidates once.`,
		Example: `  appraisal-lots analyze --mode per_item photos/*.jpg
  appraisal-lots analyze --mode per_photo --mode per_item --lang fr --currency EUR --file urls.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := root.cfg
			if cmd.Flags().Changed("lang") {
				cfg.Language = opts.language
			}
			if cmd.Flags().Changed("currency") {
				cfg.Currency = opts.currency
			}
			if cmd.Flags().Changed("concurrency") {
				cfg.Concurrency = opts.concurrency
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if _, err := lot.ParseModes(strings.Join(opts.modes, ",")); err != nil {
				return err
			}

			locators := args
			if opts.file != "" {
				fromFile, err := readLocators(opts.file)
				if err != nil {
					return err
				}
				locators = append(locators, fromFile...)
			}
			if len(locators) == 0 {
				return fmt.Errorf("no images given")
			}

			ctx := cmd.Context()
			client, err := llm.NewClient(ctx, cfg.ProviderConfig())
			if err != nil {
				return fmt.Errorf("failed to create ai client: %w", err)
			}

			store, err := storage.NewSQLiteStore(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("failed to open store: %w", err)
			}
			defer store.Close()

			if !opts.noCache {
				client = llm.NewCachedClient(client, store)
			}

			reg := prometheus.NewRegistry()
			fetcher := imageset.NewFetcher().WithTimeout(cfg.FetchTimeout).WithMaxSize(cfg.MaxImageBytes)
			runner := pipeline.NewRunner(client, fetcher,
				pipeline.WithStore(store),
				pipeline.WithMetrics(metrics.NewPipeline(reg)),
				pipeline.WithHook(logEvent),
			)

			report, err := runner.RunCombined(ctx, locators, opts.modes, pipeline.Options{
				Language:    cfg.Language,
				Currency:    cfg.Currency,
				Concurrency: cfg.Concurrency,
				Metadata:    opts.metadata,
			})
			if opts.metricsFile != "" {
				if werr := prometheus.WriteToTextfile(opts.metricsFile, reg); werr != nil {
					log.Warn().Err(werr).Str("path", opts.metricsFile).Msg("failed to write metrics")
				}
			}
			if err != nil {
				return err
			}

			return writeReport(cmd.OutOrStdout(), report, opts.format)
		},
	}

	modeNames := make([]string, 0, len(lot.Modes()))
	for _, m := range lot.Modes() {
		modeNames = append(modeNames, m.String())
	}
	cmd.Flags().StringSliceVarP(&opts.modes, "mode", "m", []string{lot.PerItem.String()},
		"grouping mode: "+strings.Join(modeNames, ", ")+" (repeatable)")
	cmd.Flags().StringVar(&opts.language, "lang", "", "language of the generated text (en, fr, es)")
	cmd.Flags().StringVar(&opts.currency, "currency", "", "currency of estimated values")
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "file with one image per line")
	cmd.Flags().StringVarP(&opts.format, "format", "o", formatYAML, "output format (yaml, json)")
	cmd.Flags().IntVarP(&opts.concurrency, "concurrency", "c", 0, "parallel model calls in per_item mode")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "do not use cached model answers")
	cmd.Flags().StringToStringVar(&opts.metadata, "meta", nil, "report metadata as key=value")
	cmd.Flags().StringVar(&opts.metricsFile, "metrics-file", "", "write Prometheus metrics of the run to this file")

	return cmd
}

// readLocators reads one image locator per line, skipping blank lines and
// lines starting with #.
func readLocators(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image list: %w", err)
	}
	defer f.Close()

	var locators []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		locators = append(locators, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read image list: %w", err)
	}
	return locators, nil
}

func logEvent(e analyzer.Event) {
	ev := log.Debug()
	if e.Err != nil {
		ev = log.Warn().Err(e.Err)
	}
	ev.Str("mode", string(e.Mode)).
		Str("stage", e.Stage).
		Int("imageIndex", e.ImageIndex).
		Int("lots", e.Lots).
		Bool("cached", e.Cached).
		Dur("duration", e.Duration).
		Msg("analysis event")
}
