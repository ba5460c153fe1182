// Package workdir manages the per-bug working directory that holds a
// downloaded attachment and whatever gets extracted from it.
package workdir

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/bcl/plain-bz-logs/internal/bugzilla"
)

// DefaultRoot is the parent directory for working directories. /var/tmp
// instead of /tmp so large archives survive a reboot-happy tmpfs.
const DefaultRoot = "/var/tmp"

const chunkSize = 32 * 1024

// Store creates and removes per-bug working directories under a fixed root.
type Store struct {
	root string
	log  *logrus.Entry
}

// New returns a Store rooted at root; an empty root means DefaultRoot.
func New(root string, log *logrus.Entry) *Store {
	if root == "" {
		root = DefaultRoot
	}
	return &Store{root: root, log: log}
}

// Dir returns the working directory path for a bug. The directory is not
// created until Fetch needs it.
func (s *Store) Dir(bug string) string {
	return filepath.Join(s.root, "bzlogs-"+bug)
}

// Fetch downloads an attachment into the bug's working directory and
// returns the local path. The target name is the basename of the declared
// file name, so a hostile name cannot escape the directory. If the file is
// already present the download is skipped, which lets an interrupted run
// resume without refetching a large archive.
func (s *Store) Fetch(ctx context.Context, tracker bugzilla.Tracker, bug string, att bugzilla.Attachment) (string, error) {
	dir := s.Dir(bug)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating working directory: %w", err)
	}

	dest := filepath.Join(dir, filepath.Base(att.FileName))
	if _, err := os.Stat(dest); err == nil {
		s.log.WithField("file", dest).Info("attachment already downloaded, skipping fetch")
		return dest, nil
	}

	rc, err := tracker.OpenAttachment(ctx, att.ID)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	f, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", dest, err)
	}

	buf := make([]byte, chunkSize)
	n, err := io.CopyBuffer(f, rc, buf)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		// A partial file would poison the resume check on the next run.
		os.Remove(dest)
		return "", fmt.Errorf("downloading attachment %d: %w", att.ID, err)
	}

	s.log.WithFields(logrus.Fields{"file": dest, "bytes": n}).Info("download complete")
	return dest, nil
}

// Cleanup removes the bug's working directory and everything in it.
func (s *Store) Cleanup(bug string) error {
	return os.RemoveAll(s.Dir(bug))
}
