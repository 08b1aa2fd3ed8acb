// Package main provides the CLI entry point for xlsxstream.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/brisktable/xlsxstream/pkg/xlsxstream"
)

var (
	outputPath string
	sheetName  string
	chunkSize  int
	verbose    bool
)

func main() {
	log := logrus.New()

	rootCmd := &cobra.Command{
		Use:   "xlsxstream [source]",
		Short: "Stream an XLSX workbook to CSV without loading it into memory",
		Long: `xlsxstream reads an XLSX workbook from a local path, an http(s):// URL,
or an s3://bucket/key URI, and streams a single worksheet to CSV.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args, log)
		},
		SilenceUsage: true,
	}

	rootCmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file path (default: stdout)")
	rootCmd.Flags().StringVar(&sheetName, "sheet-name", "", "worksheet to stream (default: first sheet)")
	rootCmd.Flags().IntVar(&chunkSize, "chunk-size", 16*1024*1024, "read buffer size in bytes")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCodeFor(err))
	}
}

func run(cmd *cobra.Command, args []string, log *logrus.Logger) error {
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	out := cmd.OutOrStdout()
	if outputPath != "" {
		f, err := os.Create(outputPath)
		if err != nil {
			return fmt.Errorf("failed to open output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	opts := []xlsxstream.Option{
		xlsxstream.WithChunkSize(chunkSize),
		xlsxstream.WithLogger(log),
		xlsxstream.WithWarningObserver(func(w xlsxstream.Warning) {
			log.WithField("detail", w.Detail).Warn(warningMessage(w.Kind))
		}),
	}
	if sheetName != "" {
		opts = append(opts, xlsxstream.WithSheetName(sheetName))
	}

	reader := xlsxstream.New(args[0], opts...)

	if err := reader.ToCSV(ctx, out); err != nil {
		logFailure(log, err)
		return exitError{err}
	}
	return nil
}

func warningMessage(kind xlsxstream.WarningKind) string {
	switch kind {
	case xlsxstream.WarningDuplicateSheetName:
		return "duplicate sheet name, keeping first occurrence"
	case xlsxstream.WarningEmptyWorkbook:
		return "workbook declares no sheets"
	default:
		return "warning"
	}
}

func logFailure(log *logrus.Logger, err error) {
	if err == context.Canceled {
		log.Warn("cancelled")
		return
	}
	log.WithError(err).Error("failed to stream workbook")
}

// exitError wraps a failure so exitCodeFor can map it to a specific process
// exit code after Cobra has already printed it via RunE's returned error.
type exitError struct{ err error }

func (e exitError) Error() string { return e.err.Error() }
func (e exitError) Unwrap() error { return e.err }

func exitCodeFor(err error) int {
	ee, ok := err.(exitError)
	if !ok {
		return 1
	}
	inner := ee.err

	if inner == context.Canceled {
		return 7
	}

	switch {
	case xlsxstream.Is(inner, xlsxstream.KindUnsupportedSource):
		return 2
	case xlsxstream.Is(inner, xlsxstream.KindNotFound):
		return 3
	case xlsxstream.Is(inner, xlsxstream.KindAuth):
		return 4
	case xlsxstream.Is(inner, xlsxstream.KindMalformedXML),
		xlsxstream.Is(inner, xlsxstream.KindCRCMismatch),
		xlsxstream.Is(inner, xlsxstream.KindUnsupportedMethod),
		xlsxstream.Is(inner, xlsxstream.KindEncryptedEntry),
		xlsxstream.Is(inner, xlsxstream.KindSplitArchive),
		xlsxstream.Is(inner, xlsxstream.KindMissingWorkbookPart),
		xlsxstream.Is(inner, xlsxstream.KindMissingRelationshipsPart),
		xlsxstream.Is(inner, xlsxstream.KindSheetNotFound),
		xlsxstream.Is(inner, xlsxstream.KindSharedStringIndex),
		xlsxstream.Is(inner, xlsxstream.KindBadCellAddress):
		return 5
	case xlsxstream.Is(inner, xlsxstream.KindIOError),
		xlsxstream.Is(inner, xlsxstream.KindSinkIO),
		xlsxstream.Is(inner, xlsxstream.KindNetwork),
		xlsxstream.Is(inner, xlsxstream.KindServiceError),
		xlsxstream.Is(inner, xlsxstream.KindHTTPStatus),
		xlsxstream.Is(inner, xlsxstream.KindTooManyRedirects),
		xlsxstream.Is(inner, xlsxstream.KindUnexpectedEOF),
		xlsxstream.Is(inner, xlsxstream.KindPermissionDenied),
		xlsxstream.Is(inner, xlsxstream.KindTimeout):
		return 6
	default:
		return 1
	}
}
