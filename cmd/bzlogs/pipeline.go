package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/bcl/plain-bz-logs/internal/bugzilla"
	"github.com/bcl/plain-bz-logs/internal/extract"
	"github.com/bcl/plain-bz-logs/internal/journal"
	"github.com/bcl/plain-bz-logs/internal/logselect"
	"github.com/bcl/plain-bz-logs/internal/upload"
	"github.com/bcl/plain-bz-logs/internal/workdir"
)

// pipeline holds the collaborators for one run. Everything is injected so
// tests can swap in fakes for the tracker, the prompt, and the directories.
type pipeline struct {
	tracker   bugzilla.Tracker
	store     *workdir.Store
	extractor extract.Extractor
	journal   *journal.Journal
	confirm   upload.Confirm
	log       *logrus.Entry
	out       io.Writer
}

// listAttachments prints one line per attachment in the order the server
// returned them.
func (p *pipeline) listAttachments(bug *bugzilla.Bug) {
	fmt.Fprintf(p.out, "%s\n", colorize(colorBold, fmt.Sprintf("Bug %d - %s", bug.ID, bug.Summary)))
	for _, att := range bug.Attachments {
		obsolete := ""
		if att.Obsolete() {
			obsolete = " (obsolete)"
		}
		fmt.Fprintf(p.out, "%d: %s (%s) - %s%s\n", att.ID, att.FileName, att.ContentType, att.Summary, obsolete)
	}
}

// processAttachment runs the fetch, extract, select, confirm, upload, and
// cleanup sequence for the attachment named by --attach.
//
// Lookup and extraction failures are logged and end the run without cleanup
// so the partial state stays inspectable; transport failures propagate.
func (p *pipeline) processAttachment(ctx context.Context, bugID string, bug *bugzilla.Bug, opts *options) error {
	att, err := bug.Attachment(opts.attach)
	if err != nil {
		p.log.WithError(err).Error("attachment lookup failed")
		return nil
	}
	log := p.log.WithField("attachment", att.ID)

	archive, err := p.store.Fetch(ctx, p.tracker, bugID, att)
	if err != nil {
		return fmt.Errorf("fetching attachment %d: %w", att.ID, err)
	}

	dir := p.store.Dir(bugID)
	if err := p.extractor.Extract(ctx, archive, dir); err != nil {
		if errors.Is(err, extract.ErrNotArchive) {
			log.WithField("file", archive).Debug("attachment is not an archive, using the file as-is")
		} else {
			log.WithError(err).Error("extraction failed")
			return nil
		}
	}

	if opts.extractOnly {
		fmt.Fprintln(p.out, dir)
		return nil
	}

	candidates, err := logselect.Select(dir)
	if err != nil {
		return fmt.Errorf("scanning %s: %w", dir, err)
	}
	if len(candidates) == 0 {
		log.Info("no log files found in the extracted tree")
		return nil
	}

	fmt.Fprintf(p.out, "%s\n", colorize(colorBold, fmt.Sprintf("Logs found for bug %s:", bugID)))
	for _, c := range candidates {
		fmt.Fprintf(p.out, "  %s\n", c)
	}

	if p.journal != nil {
		if prev, herr := p.journal.History(bugID, att.ID); herr == nil && len(prev) > 0 {
			log.WithField("uploads", len(prev)).Warn("logs from this attachment were already uploaded by an earlier run")
		}
	}

	if !opts.yes {
		answer, err := p.confirm("Upload these as text/plain attachments? Type YES to continue: ")
		if err != nil {
			return fmt.Errorf("reading confirmation: %w", err)
		}
		if answer != "YES" {
			log.Info("upload not confirmed, leaving the working directory in place")
			return nil
		}
	}

	p.uploadAndClean(ctx, bugID, att, archive, dir, candidates, opts)
	return nil
}

func (p *pipeline) uploadAndClean(ctx context.Context, bugID string, att bugzilla.Attachment, archive, dir string, candidates []string, opts *options) {
	uploader := upload.New(p.tracker, p.journal, p.log)
	n := uploader.Upload(ctx, bugID, att, archive, candidates)
	p.log.WithField("uploaded", n).Info("upload pass finished")

	if opts.nocleanup {
		p.log.WithField("dir", dir).Info("leaving the working directory in place")
		return
	}
	if err := p.store.Cleanup(bugID); err != nil {
		p.log.WithError(err).Error("cleanup failed")
		return
	}
	p.log.WithField("dir", dir).Debug("working directory removed")
}
