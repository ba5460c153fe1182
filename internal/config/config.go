package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Credentials is the Bugzilla account used for every API call. Both fields
// must be non-empty before any network activity happens.
type Credentials struct {
	Username string
	Password string
}

// Keys recognized in the rc file. Any other line is ignored, so the file can
// double as a shell snippet that exports the same variables.
const (
	userKey     = "RHBZ_USER"
	passwordKey = "RHBZ_PASSWORD"
)

// Load reads credentials from the rc file and applies environment overrides.
//
// The rc file is ~/.bugzillarc (override the path with BZLOGS_RC). It is
// line-oriented KEY=value text; values may be wrapped in single or double
// quotes. BZLOGS_USER and BZLOGS_PASSWORD override whatever the file says.
func Load() (Credentials, error) {
	return loadWith(defaultPath(), os.Getenv)
}

func defaultPath() string {
	if p := os.Getenv("BZLOGS_RC"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".bugzillarc"
	}
	return filepath.Join(home, ".bugzillarc")
}

func loadWith(path string, getenv func(string) string) (Credentials, error) {
	creds, readErr := parseFile(path)

	if v := getenv("BZLOGS_USER"); v != "" {
		creds.Username = v
	}
	if v := getenv("BZLOGS_PASSWORD"); v != "" {
		creds.Password = v
	}

	if creds.Username != "" && creds.Password != "" {
		return creds, nil
	}

	// Report every problem at once: a read failure plus one distinct error
	// per missing field.
	var errs []error
	if readErr != nil {
		errs = append(errs, fmt.Errorf("reading %s: %w", path, readErr))
	}
	if creds.Username == "" {
		errs = append(errs, fmt.Errorf("missing %s (set it in %s or via BZLOGS_USER)", userKey, path))
	}
	if creds.Password == "" {
		errs = append(errs, fmt.Errorf("missing %s (set it in %s or via BZLOGS_PASSWORD)", passwordKey, path))
	}
	return Credentials{}, errors.Join(errs...)
}

func parseFile(path string) (Credentials, error) {
	var creds Credentials

	f, err := os.Open(path)
	if err != nil {
		return creds, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, userKey+"="):
			creds.Username = unquote(strings.TrimPrefix(line, userKey+"="))
		case strings.HasPrefix(line, passwordKey+"="):
			creds.Password = unquote(strings.TrimPrefix(line, passwordKey+"="))
		}
	}
	if err := scanner.Err(); err != nil {
		return creds, err
	}
	return creds, nil
}

func unquote(v string) string {
	return strings.Trim(v, `"'`)
}
