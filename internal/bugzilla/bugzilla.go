// Package bugzilla is a thin client for the handful of Bugzilla operations
// this tool needs: login, reading a bug and its attachment list, streaming
// an attachment's bytes, and attaching a new file.
package bugzilla

import (
	"context"
	"fmt"
	"io"
)

// Attachment is one file attached to a bug, as returned by the REST API.
type Attachment struct {
	ID          int    `json:"id"`
	FileName    string `json:"file_name"`
	Summary     string `json:"summary"`
	ContentType string `json:"content_type"`
	// The wire format uses 0/1 here, not true/false.
	IsObsolete int   `json:"is_obsolete"`
	Size       int64 `json:"size"`
}

// Obsolete reports whether the attachment has been marked obsolete.
func (a Attachment) Obsolete() bool {
	return a.IsObsolete != 0
}

// Bug is the subset of bug data this tool reads.
type Bug struct {
	ID          int    `json:"id"`
	Summary     string `json:"summary"`
	Attachments []Attachment
}

// Attachment returns the attachment with the given id. Exactly one match is
// required; zero or multiple matches is an error.
func (b *Bug) Attachment(id int) (Attachment, error) {
	var matches []Attachment
	for _, a := range b.Attachments {
		if a.ID == id {
			matches = append(matches, a)
		}
	}
	switch len(matches) {
	case 0:
		return Attachment{}, fmt.Errorf("bug %d has no attachment with id %d", b.ID, id)
	case 1:
		return matches[0], nil
	default:
		return Attachment{}, fmt.Errorf("bug %d has %d attachments with id %d", b.ID, len(matches), id)
	}
}

// Tracker is the bug-tracker capability the pipeline depends on. The
// production implementation is Client; tests use in-memory fakes.
type Tracker interface {
	// Login authenticates and stores a session token for later calls.
	Login(ctx context.Context, user, password string) error

	// Bug fetches a bug and its full attachment list.
	Bug(ctx context.Context, id string) (*Bug, error)

	// OpenAttachment returns the attachment's raw bytes as a stream. The
	// caller must close it.
	OpenAttachment(ctx context.Context, id int) (io.ReadCloser, error)

	// UploadAttachment attaches the contents of data to the bug and returns
	// the new attachment's id.
	UploadAttachment(ctx context.Context, bug, fileName, description, contentType string, data io.Reader) (int, error)
}
