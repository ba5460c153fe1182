package main

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/sirupsen/logrus"

	"github.com/bcl/plain-bz-logs/internal/bugzilla"
	"github.com/bcl/plain-bz-logs/internal/extract"
	"github.com/bcl/plain-bz-logs/internal/upload"
	"github.com/bcl/plain-bz-logs/internal/workdir"
)

type uploadCall struct {
	Bug         string
	FileName    string
	Description string
	ContentType string
	Content     string
}

// fakeTracker is an in-memory bug tracker: one bug, attachment content
// served from a map, uploads recorded.
type fakeTracker struct {
	bug     *bugzilla.Bug
	content map[int][]byte
	opens   int
	uploads []uploadCall
}

func (f *fakeTracker) Login(context.Context, string, string) error { return nil }

func (f *fakeTracker) Bug(context.Context, string) (*bugzilla.Bug, error) {
	return f.bug, nil
}

func (f *fakeTracker) OpenAttachment(_ context.Context, id int) (io.ReadCloser, error) {
	f.opens++
	content, ok := f.content[id]
	if !ok {
		return nil, errors.New("no such attachment")
	}
	return io.NopCloser(bytes.NewReader(content)), nil
}

func (f *fakeTracker) UploadAttachment(_ context.Context, bug, fileName, description, contentType string, data io.Reader) (int, error) {
	content, err := io.ReadAll(data)
	if err != nil {
		return 0, err
	}
	f.uploads = append(f.uploads, uploadCall{bug, fileName, description, contentType, string(content)})
	return 100 + len(f.uploads), nil
}

// logArchive builds a tar.gz with the usual anaconda log layout, including
// a zero-byte log and a non-log file.
func logArchive(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	entries := []struct {
		name    string
		content string
	}{
		{"logs/anaconda.log", "anaconda was here\n"},
		{"logs/storage.log", "storage happened\n"},
		{"logs/empty.log", ""},
		{"logs/readme.txt", "not a log\n"},
	}
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Mode: 0o644, Typeflag: tar.TypeReg, Size: int64(len(e.content))}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(e.content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func testLog() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

var ctx = context.Background()

// newTestPipeline wires a pipeline against a fake tracker and a temp
// working-directory root. answers feeds the confirmation prompt.
func newTestPipeline(t *testing.T, tracker *fakeTracker, answer string) (*pipeline, *bytes.Buffer, *int) {
	t.Helper()
	log := testLog()
	out := &bytes.Buffer{}
	prompts := 0
	p := &pipeline{
		tracker:   tracker,
		store:     workdir.New(t.TempDir(), log),
		extractor: extract.NewNativeExtractor(log),
		confirm: upload.Confirm(func(string) (string, error) {
			prompts++
			return answer, nil
		}),
		log: log,
		out: out,
	}
	return p, out, &prompts
}

func archiveTracker(t *testing.T) *fakeTracker {
	t.Helper()
	return &fakeTracker{
		bug: &bugzilla.Bug{
			ID:      1234,
			Summary: "installer crashed",
			Attachments: []bugzilla.Attachment{
				{ID: 11, FileName: "logs.tar.gz", Summary: "anaconda logs", ContentType: "application/gzip"},
			},
		},
		content: map[int][]byte{11: logArchive(t)},
	}
}

func TestProcessAttachmentHappyPath(t *testing.T) {
	tracker := archiveTracker(t)
	p, out, prompts := newTestPipeline(t, tracker, "YES")

	opts := &options{attach: 11}
	if err := p.processAttachment(ctx, "1234", tracker.bug, opts); err != nil {
		t.Fatalf("processAttachment failed: %v", err)
	}

	if *prompts != 1 {
		t.Errorf("prompt shown %d times, want 1", *prompts)
	}
	if !strings.Contains(out.String(), "Logs found for bug 1234") {
		t.Errorf("candidate header missing from output:\n%s", out.String())
	}

	// anaconda.log and storage.log uploaded; empty.log and readme.txt not.
	if len(tracker.uploads) != 2 {
		t.Fatalf("got %d uploads, want 2: %+v", len(tracker.uploads), tracker.uploads)
	}
	names := []string{tracker.uploads[0].FileName, tracker.uploads[1].FileName}
	if names[0] != "anaconda.log" || names[1] != "storage.log" {
		t.Errorf("uploaded %v, want [anaconda.log storage.log]", names)
	}
	for _, up := range tracker.uploads {
		if up.ContentType != "text/plain" {
			t.Errorf("%s uploaded as %q, want text/plain", up.FileName, up.ContentType)
		}
		if up.Description != up.FileName+" extracted from logs.tar.gz" {
			t.Errorf("description = %q", up.Description)
		}
	}

	// Successful run cleans the working directory.
	if _, err := os.Stat(p.store.Dir("1234")); !os.IsNotExist(err) {
		t.Error("working directory still exists after a successful run")
	}
}

func TestConfirmRequiresExactYES(t *testing.T) {
	for _, answer := range []string{"yes", "", "y", "YES ", "Yes"} {
		t.Run("answer="+answer, func(t *testing.T) {
			tracker := archiveTracker(t)
			p, _, _ := newTestPipeline(t, tracker, answer)

			if err := p.processAttachment(ctx, "1234", tracker.bug, &options{attach: 11}); err != nil {
				t.Fatalf("processAttachment failed: %v", err)
			}
			if len(tracker.uploads) != 0 {
				t.Errorf("answer %q triggered an upload", answer)
			}
			// A declined confirmation keeps the working directory.
			if _, err := os.Stat(p.store.Dir("1234")); err != nil {
				t.Errorf("working directory missing after declined confirmation: %v", err)
			}
		})
	}
}

func TestYesFlagSkipsPrompt(t *testing.T) {
	tracker := archiveTracker(t)
	p, _, prompts := newTestPipeline(t, tracker, "no")

	opts := &options{attach: 11, yes: true}
	if err := p.processAttachment(ctx, "1234", tracker.bug, opts); err != nil {
		t.Fatalf("processAttachment failed: %v", err)
	}
	if *prompts != 0 {
		t.Errorf("prompt shown %d times with --yes, want 0", *prompts)
	}
	if len(tracker.uploads) != 2 {
		t.Errorf("got %d uploads, want 2", len(tracker.uploads))
	}
}

func TestExtractOnly(t *testing.T) {
	tracker := archiveTracker(t)
	p, out, prompts := newTestPipeline(t, tracker, "YES")

	opts := &options{attach: 11, extractOnly: true}
	if err := p.processAttachment(ctx, "1234", tracker.bug, opts); err != nil {
		t.Fatalf("processAttachment failed: %v", err)
	}

	if *prompts != 0 {
		t.Error("extract-only mode must not prompt")
	}
	if len(tracker.uploads) != 0 {
		t.Error("extract-only mode must not upload")
	}

	dir := p.store.Dir("1234")
	if strings.TrimSpace(out.String()) != dir {
		t.Errorf("output = %q, want the working directory %q", out.String(), dir)
	}
	if _, err := os.Stat(filepath.Join(dir, "logs", "anaconda.log")); err != nil {
		t.Errorf("extracted tree missing: %v", err)
	}
}

func TestNocleanupKeepsWorkdir(t *testing.T) {
	tracker := archiveTracker(t)
	p, _, _ := newTestPipeline(t, tracker, "YES")

	opts := &options{attach: 11, nocleanup: true}
	if err := p.processAttachment(ctx, "1234", tracker.bug, opts); err != nil {
		t.Fatalf("processAttachment failed: %v", err)
	}
	if len(tracker.uploads) != 2 {
		t.Fatalf("got %d uploads, want 2", len(tracker.uploads))
	}
	if _, err := os.Stat(p.store.Dir("1234")); err != nil {
		t.Errorf("working directory missing with --nocleanup: %v", err)
	}
}

func TestAttachmentLookupFailureAbortsQuietly(t *testing.T) {
	tracker := archiveTracker(t)
	p, _, _ := newTestPipeline(t, tracker, "YES")

	if err := p.processAttachment(ctx, "1234", tracker.bug, &options{attach: 99}); err != nil {
		t.Fatalf("processAttachment returned an error: %v", err)
	}
	if tracker.opens != 0 {
		t.Error("a failed lookup must not fetch anything")
	}
	if len(tracker.uploads) != 0 {
		t.Error("a failed lookup must not upload anything")
	}
}

func TestCorruptArchiveAbortsBeforeUpload(t *testing.T) {
	// Gzip magic followed by garbage: sniffed as tar.gz, fails to extract.
	tracker := archiveTracker(t)
	tracker.content[11] = []byte{0x1f, 0x8b, 0xff, 0xfe, 0xfd}
	p, _, prompts := newTestPipeline(t, tracker, "YES")

	if err := p.processAttachment(ctx, "1234", tracker.bug, &options{attach: 11}); err != nil {
		t.Fatalf("processAttachment returned an error: %v", err)
	}
	if *prompts != 0 || len(tracker.uploads) != 0 {
		t.Error("a failed extraction must stop before confirmation and upload")
	}
	// No cleanup of the partial state.
	if _, err := os.Stat(p.store.Dir("1234")); err != nil {
		t.Errorf("working directory missing after failed extraction: %v", err)
	}
}

func TestPlainFileAttachmentUsedAsIs(t *testing.T) {
	tracker := archiveTracker(t)
	tracker.bug.Attachments[0].FileName = "anaconda.log"
	tracker.content[11] = []byte("not an archive, just a log\n")
	p, _, _ := newTestPipeline(t, tracker, "YES")

	if err := p.processAttachment(ctx, "1234", tracker.bug, &options{attach: 11}); err != nil {
		t.Fatalf("processAttachment failed: %v", err)
	}
	if len(tracker.uploads) != 1 {
		t.Fatalf("got %d uploads, want 1", len(tracker.uploads))
	}
	if tracker.uploads[0].FileName != "anaconda.log" {
		t.Errorf("uploaded %q", tracker.uploads[0].FileName)
	}
	if tracker.uploads[0].Description != "anaconda.log extracted from anaconda.log" {
		t.Errorf("description = %q", tracker.uploads[0].Description)
	}
}

func TestFetchResumeAcrossRuns(t *testing.T) {
	tracker := archiveTracker(t)
	p, _, _ := newTestPipeline(t, tracker, "YES")

	// First run keeps the working directory around.
	opts := &options{attach: 11, nocleanup: true}
	if err := p.processAttachment(ctx, "1234", tracker.bug, opts); err != nil {
		t.Fatal(err)
	}
	if err := p.processAttachment(ctx, "1234", tracker.bug, opts); err != nil {
		t.Fatal(err)
	}
	if tracker.opens != 1 {
		t.Errorf("attachment stream opened %d times across two runs, want 1", tracker.opens)
	}
}

func TestListAttachments(t *testing.T) {
	tracker := archiveTracker(t)
	tracker.bug.Attachments = append(tracker.bug.Attachments,
		bugzilla.Attachment{ID: 12, FileName: "old.log", Summary: "stale", ContentType: "text/plain", IsObsolete: 1})
	p, out, _ := newTestPipeline(t, tracker, "")

	p.listAttachments(tracker.bug)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d output lines, want header plus two attachments:\n%s", len(lines), out.String())
	}
	if !strings.Contains(lines[1], "11: logs.tar.gz (application/gzip) - anaconda logs") {
		t.Errorf("attachment line = %q", lines[1])
	}
	if !strings.Contains(lines[2], "(obsolete)") {
		t.Errorf("obsolete marker missing: %q", lines[2])
	}
}

func TestRootCmdValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no mode", []string{"1234"}},
		{"both modes", []string{"--list", "--attach", "11", "1234"}},
		{"no bug", []string{"--list"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newRootCmd()
			cmd.SetArgs(tt.args)
			cmd.SetOut(io.Discard)
			cmd.SetErr(io.Discard)
			if err := cmd.Execute(); err == nil {
				t.Errorf("args %v should be rejected", tt.args)
			}
		})
	}
}
