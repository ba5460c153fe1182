package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/bcl/plain-bz-logs/internal/bugzilla"
	"github.com/bcl/plain-bz-logs/internal/config"
	"github.com/bcl/plain-bz-logs/internal/extract"
	"github.com/bcl/plain-bz-logs/internal/journal"
	"github.com/bcl/plain-bz-logs/internal/upload"
	"github.com/bcl/plain-bz-logs/internal/workdir"
)

type options struct {
	list        bool
	attach      int
	extractOnly bool
	nocleanup   bool
	yes         bool
	debug       bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "bzlogs [flags] <bznum>",
		Short: "Fetch, extract, and re-attach installer logs from a Bugzilla bug",
		Long: `bzlogs downloads a bug attachment, unpacks it if it is an archive,
finds the anaconda log files inside, and re-uploads them as plain-text
attachments so they can be read directly in the browser.

Credentials come from ~/.bugzillarc:

  RHBZ_USER="you@example.com"
  RHBZ_PASSWORD="..."

Examples:
  bzlogs --list 1234567
  bzlogs --attach 987654 1234567
  bzlogs --attach 987654 --extract-only 1234567`,
		Version:       version,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Validate the mode before touching the network.
			if opts.list == (opts.attach != 0) {
				return fmt.Errorf("exactly one of --list or --attach is required")
			}
			return run(cmd.Context(), args[0], opts)
		},
	}

	cmd.Flags().BoolVar(&opts.list, "list", false, "list the bug's attachments and exit")
	cmd.Flags().IntVar(&opts.attach, "attach", 0, "attachment id to download, extract, and re-upload logs from")
	cmd.Flags().BoolVar(&opts.extractOnly, "extract-only", false, "stop after extraction and print the working directory")
	cmd.Flags().BoolVar(&opts.nocleanup, "nocleanup", false, "keep the working directory after uploading")
	cmd.Flags().BoolVar(&opts.yes, "yes", false, "skip the upload confirmation prompt")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	return cmd
}

func run(ctx context.Context, bugID string, opts *options) error {
	logger := newLogger(opts.debug)
	log := logger.WithField("bug", bugID)

	creds, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	baseURL := os.Getenv("BZLOGS_URL")
	if baseURL == "" {
		baseURL = bugzilla.DefaultBaseURL
	}
	tracker := bugzilla.New(baseURL)
	if err := tracker.Login(ctx, creds.Username, creds.Password); err != nil {
		return fmt.Errorf("logging in to %s: %w", baseURL, err)
	}
	log.WithField("user", creds.Username).Debug("logged in")

	bug, err := tracker.Bug(ctx, bugID)
	if err != nil {
		return err
	}

	p := &pipeline{
		tracker:   tracker,
		store:     workdir.New(os.Getenv("BZLOGS_WORKDIR"), log),
		extractor: newExtractor(log),
		confirm:   upload.StdinConfirm,
		log:       log,
		out:       os.Stdout,
	}

	if opts.list {
		p.listAttachments(bug)
		return nil
	}

	// The journal is best-effort bookkeeping: warn and continue without it.
	if jnl, jerr := journal.Open(journal.DefaultDir()); jerr != nil {
		log.WithError(jerr).Warn("upload journal unavailable")
	} else {
		p.journal = jnl
		defer jnl.Close()
	}

	return p.processAttachment(ctx, bugID, bug, opts)
}

// newExtractor returns the in-process backend unless BZLOGS_EXTRACTOR=exec
// asks for the external tar/unzip tools.
func newExtractor(log *logrus.Entry) extract.Extractor {
	if os.Getenv("BZLOGS_EXTRACTOR") == "exec" {
		return extract.NewExecExtractor(log)
	}
	return extract.NewNativeExtractor(log)
}
