// Package cli implements the appraisal-lots command line.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/raine/appraisal-lots/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

type rootOptions struct {
	configPath string
	logLevel   string
	cfg        *config.Config
	logFile    *os.File
}

// NewRootCmd returns the appraisal-lots root command.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "appraisal-lots",
		Short: "Group and deduplicate appraisal lots from photos",
		Long: `appraisal-lots turns a batch of photos from an appraisal visit into an
ordered list of lots using a multimodal model.

Images are grouped with one of the single_lot, per_item or per_photo modes,
duplicates are removed by serial number or by photo frame, and the result is
printed as YAML or JSON.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config.LoadEnvFiles()
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if opts.logLevel != "" {
				cfg.LogLevel = opts.logLevel
			}
			opts.cfg = cfg
			return opts.setupLogging(cmd.ErrOrStderr())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logFile != nil {
				_ = opts.logFile.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML config file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")

	cmd.AddCommand(newAnalyzeCmd(opts))
	cmd.AddCommand(newRunsCmd(opts))
	cmd.AddCommand(newCacheCmd(opts))

	return cmd
}

// setupLogging sends logs to stderr and, when configured, to a log file.
func (o *rootOptions) setupLogging(stderr io.Writer) error {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(o.cfg.LogLevel)
	if err != nil || o.cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	consoleWriter := zerolog.ConsoleWriter{Out: stderr, NoColor: !isTerminal(stderr)}
	if o.cfg.LogFile == "" {
		log.Logger = log.Output(consoleWriter)
		return nil
	}

	logFile, err := os.OpenFile(o.cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	o.logFile = logFile
	fileWriter := zerolog.ConsoleWriter{Out: logFile, NoColor: true}
	log.Logger = log.Output(io.MultiWriter(consoleWriter, fileWriter))
	log.Debug().Str("logFile", o.cfg.LogFile).Msg("logging to file")
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
