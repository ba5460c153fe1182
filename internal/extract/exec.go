package extract

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

// ExecExtractor shells out to tar or unzip. It exists for parity with the
// original workflow; NativeExtractor is the default backend.
type ExecExtractor struct {
	log *logrus.Entry
}

// NewExecExtractor returns an extractor backed by external tools.
func NewExecExtractor(log *logrus.Entry) *ExecExtractor {
	return &ExecExtractor{log: log}
}

// Extract sniffs the archive and runs the matching tool, waiting for it to
// finish. A non-zero exit is an error; partially-extracted files are left
// as-is.
func (e *ExecExtractor) Extract(ctx context.Context, archive, dest string) error {
	format, err := Sniff(archive)
	if err != nil {
		return err
	}

	var cmd *exec.Cmd
	switch format {
	case FormatTar, FormatTarGz:
		// tar autodetects the compression layer.
		cmd = exec.CommandContext(ctx, "tar", "-xf", archive, "-C", dest)
	case FormatZip:
		cmd = exec.CommandContext(ctx, "unzip", "-o", archive, "-d", dest)
	default:
		return ErrNotArchive
	}

	e.log.WithField("cmd", strings.Join(cmd.Args, " ")).Debug("extracting")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s failed: %s: %w", cmd.Args[0], strings.TrimSpace(string(out)), err)
	}
	return nil
}
