// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package hostinfo

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kylelemons/godebug/pretty"
)

const ubuntu = `# comment
NAME="Ubuntu"
VERSION_ID="24.04"
PRETTY_NAME="Ubuntu 24.04.1 LTS"
ID=ubuntu
ID_LIKE=debian
`

func TestParse(t *testing.T) {
	tests := []struct {
		desc       string
		input      string
		want       OSRelease
		wantWinVer string
	}{
		{
			desc:       "Ubuntu",
			input:      ubuntu,
			want:       OSRelease{ID: "ubuntu", Name: "Ubuntu", PrettyName: "Ubuntu 24.04.1 LTS", VersionID: "24.04"},
			wantWinVer: "Ubuntu 24.04.1 LTS 24.04",
		},
		{
			desc:       "single quotes and no version",
			input:      "PRETTY_NAME='Arch Linux'\nID=arch\n",
			want:       OSRelease{ID: "arch", PrettyName: "Arch Linux"},
			wantWinVer: "Arch Linux",
		},
		{
			desc:  "empty",
			input: "",
		},
		{
			desc:  "garbage lines",
			input: "not a key value\n=\n",
		},
	}

	for _, test := range tests {
		got, err := Parse(strings.NewReader(test.input))
		if err != nil {
			t.Errorf("TestParse(%s): got err == %s, want err == nil", test.desc, err)
			continue
		}
		if diff := pretty.Compare(test.want, got); diff != "" {
			t.Errorf("TestParse(%s): -want/+got:\n%s", test.desc, diff)
		}
		if got.WinVer() != test.wantWinVer {
			t.Errorf("TestParse(%s): WinVer() == %q, want %q", test.desc, got.WinVer(), test.wantWinVer)
		}
	}
}

func TestFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "os-release")
	if err := os.WriteFile(path, []byte(ubuntu), 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := Files{Paths: []string{filepath.Join(dir, "missing"), path}}.OSRelease()
	if err != nil {
		t.Fatalf("TestFiles: got err == %s, want err == nil", err)
	}
	if got.ID != "ubuntu" {
		t.Errorf("TestFiles: got ID %q, want ubuntu", got.ID)
	}

	if _, err := (Files{Paths: []string{filepath.Join(dir, "missing")}}).OSRelease(); err == nil {
		t.Errorf("TestFiles(missing): got err == nil, want err != nil")
	}
}

func TestStatic(t *testing.T) {
	got, _ := Static{PrettyName: "Fedora Linux 41", VersionID: "41"}.OSRelease()
	if got.WinVer() != "Fedora Linux 41 41" {
		t.Errorf("TestStatic: got %q", got.WinVer())
	}
}
