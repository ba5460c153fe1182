// Package upload sends selected log files back to the bug as plain-text
// attachments.
package upload

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/bcl/plain-bz-logs/internal/bugzilla"
	"github.com/bcl/plain-bz-logs/internal/journal"
)

// Confirm asks the user a question and returns the raw answer line. It is a
// function so tests and --yes can replace the interactive prompt.
type Confirm func(prompt string) (string, error)

// StdinConfirm prompts on stdout and blocks for one line on stdin.
func StdinConfirm(prompt string) (string, error) {
	fmt.Print(prompt)
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return "", scanner.Err()
	}
	return scanner.Text(), nil
}

// Uploader pushes candidate files to the tracker one at a time and records
// each success in the journal when one is available.
type Uploader struct {
	tracker bugzilla.Tracker
	journal *journal.Journal
	log     *logrus.Entry
}

// New returns an Uploader. journal may be nil; bookkeeping is then skipped.
func New(tracker bugzilla.Tracker, jnl *journal.Journal, log *logrus.Entry) *Uploader {
	return &Uploader{tracker: tracker, journal: jnl, log: log}
}

// Upload attaches each candidate to the bug as text/plain. Empty files are
// skipped because the server rejects empty content, and a failed upload is
// logged without stopping the rest of the batch. The number of successful
// uploads is returned.
func (u *Uploader) Upload(ctx context.Context, bug string, source bugzilla.Attachment, archive string, candidates []string) int {
	uploaded := 0
	for _, path := range candidates {
		log := u.log.WithField("file", path)

		info, err := os.Stat(path)
		if err != nil {
			log.WithError(err).Error("cannot stat candidate, skipping")
			continue
		}
		if info.Size() == 0 {
			log.Info("skipping empty file")
			continue
		}

		f, err := os.Open(path)
		if err != nil {
			log.WithError(err).Error("cannot open candidate, skipping")
			continue
		}

		name := filepath.Base(path)
		description := fmt.Sprintf("%s extracted from %s", name, filepath.Base(archive))
		id, err := u.tracker.UploadAttachment(ctx, bug, name, description, "text/plain", f)
		f.Close()
		if err != nil {
			log.WithError(err).Error("upload failed")
			continue
		}

		log.WithField("attachment", id).Info("uploaded")
		uploaded++

		if u.journal == nil {
			continue
		}
		err = u.journal.Record(journal.Entry{
			Bug:              bug,
			SourceAttachment: source.ID,
			FileName:         name,
			NewAttachment:    id,
		})
		if err != nil {
			log.WithError(err).Warn("journal write failed")
		}
	}
	return uploaded
}
