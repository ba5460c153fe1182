// Package logselect picks the installer log files worth re-uploading out of
// an extracted attachment tree.
package logselect

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Traceback dumps are matched by prefix, everything else by the bare "log"
// suffix so program.log, storage.log and friends all qualify.
const (
	tracebackPrefix = "anaconda-tb"
	anchorName      = "anaconda.log"
	logSuffix       = "log"
)

// Select walks the tree under root one directory at a time, shallowest
// first, and returns the candidate log files from the first directory that
// yields any:
//
//  1. anaconda-tb* files win outright; a crash dump is the most useful
//     thing in the archive.
//  2. otherwise a directory holding anaconda.log contributes every file
//     there whose name ends in "log".
//
// Matching is by name only, never content. If no directory matches, the
// result is empty.
func Select(root string) ([]string, error) {
	queue := []string{root}
	for len(queue) > 0 {
		dir := queue[0]
		queue = queue[1:]

		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", dir, err)
		}

		var tracebacks, logs []string
		anchored := false
		for _, entry := range entries {
			if entry.IsDir() {
				queue = append(queue, filepath.Join(dir, entry.Name()))
				continue
			}
			name := entry.Name()
			if strings.HasPrefix(name, tracebackPrefix) {
				tracebacks = append(tracebacks, filepath.Join(dir, name))
			}
			if name == anchorName {
				anchored = true
			}
			if strings.HasSuffix(name, logSuffix) {
				logs = append(logs, filepath.Join(dir, name))
			}
		}

		if len(tracebacks) > 0 {
			return tracebacks, nil
		}
		if anchored {
			return logs, nil
		}
	}
	return nil, nil
}
