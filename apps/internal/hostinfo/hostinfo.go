// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package hostinfo provides the host metadata that is reported to the authority when a device
// requests a Primary Refresh Token.
package hostinfo

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
)

// Default paths searched for os-release(5) data, in order.
var DefaultPaths = []string{"/etc/os-release", "/usr/lib/os-release"}

// OSRelease holds the os-release fields used by this module.
type OSRelease struct {
	ID         string
	Name       string
	PrettyName string
	VersionID  string
}

// WinVer returns the value sent in the win_ver claim of a PRT request. It is empty if the
// release has no PRETTY_NAME.
func (r OSRelease) WinVer() string {
	if r.PrettyName == "" {
		return ""
	}
	if r.VersionID == "" {
		return r.PrettyName
	}
	return r.PrettyName + " " + r.VersionID
}

// Provider supplies host metadata.
type Provider interface {
	OSRelease() (OSRelease, error)
}

// Files reads os-release data from the first existing path in Paths. If Paths is empty,
// DefaultPaths is used.
type Files struct {
	Paths []string
}

// OSRelease implements Provider.OSRelease().
func (f Files) OSRelease() (OSRelease, error) {
	paths := f.Paths
	if len(paths) == 0 {
		paths = DefaultPaths
	}
	for _, p := range paths {
		file, err := os.Open(p)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return OSRelease{}, err
		}
		defer file.Close()
		return Parse(file)
	}
	return OSRelease{}, fmt.Errorf("hostinfo: no os-release file found in %v", paths)
}

// Static is a Provider that always returns the same release.
type Static OSRelease

// OSRelease implements Provider.OSRelease().
func (s Static) OSRelease() (OSRelease, error) {
	return OSRelease(s), nil
}

// Parse reads os-release(5) formatted data.
func Parse(r io.Reader) (OSRelease, error) {
	var rel OSRelease
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		value = unquote(value)
		switch key {
		case "ID":
			rel.ID = value
		case "NAME":
			rel.Name = value
		case "PRETTY_NAME":
			rel.PrettyName = value
		case "VERSION_ID":
			rel.VersionID = value
		}
	}
	if err := scanner.Err(); err != nil {
		return OSRelease{}, fmt.Errorf("hostinfo: reading os-release: %w", err)
	}
	return rel, nil
}

func unquote(v string) string {
	if len(v) < 2 {
		return v
	}
	switch v[0] {
	case '"':
		if s, err := strconv.Unquote(v); err == nil {
			return s
		}
		return strings.Trim(v, `"`)
	case '\'':
		return strings.Trim(v, "'")
	}
	return v
}
