// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package authority

import (
	"testing"

	"github.com/kylelemons/godebug/pretty"
)

func TestFormatHost(t *testing.T) {
	tests := []struct {
		desc  string
		input string
		want  string
		err   bool
	}{
		{desc: "bare host", input: "login.microsoftonline.com", want: "login.microsoftonline.com"},
		{desc: "https url", input: "https://login.microsoftonline.com/", want: "login.microsoftonline.com"},
		{desc: "upper case", input: "HTTPS://Login.MicrosoftOnline.com", want: "login.microsoftonline.com"},
		{desc: "port", input: "localhost:8443", want: "localhost:8443"},
		{desc: "empty uses default", input: "  ", want: DefaultHost},
		{desc: "Error: http scheme", input: "http://login.microsoftonline.com", err: true},
		{desc: "Error: path", input: "https://login.microsoftonline.com/common", err: true},
		{desc: "Error: no host", input: "https://", err: true},
	}

	for _, test := range tests {
		got, err := FormatHost(test.input)
		switch {
		case err == nil && test.err:
			t.Errorf("TestFormatHost(%s): got err == nil, want err != nil", test.desc)
			continue
		case err != nil && !test.err:
			t.Errorf("TestFormatHost(%s): got err == %s, want err == nil", test.desc, err)
			continue
		case err != nil:
			continue
		}
		if got != test.want {
			t.Errorf("TestFormatHost(%s): got %q, want %q", test.desc, got, test.want)
		}
	}
}

func TestNewInfo(t *testing.T) {
	tests := []struct {
		desc   string
		host   string
		tenant string
		want   Info
		err    bool
	}{
		{
			desc:   "Success",
			host:   "https://login.microsoftonline.com/",
			tenant: "contoso.onmicrosoft.com",
			want: Info{
				Host:                  "login.microsoftonline.com",
				Tenant:                "contoso.onmicrosoft.com",
				CanonicalAuthorityURI: "https://login.microsoftonline.com/contoso.onmicrosoft.com/",
			},
		},
		{desc: "Error: empty tenant", host: "login.microsoftonline.com", tenant: "", err: true},
		{desc: "Error: tenant with slash", host: "login.microsoftonline.com", tenant: "a/b", err: true},
		{desc: "Error: bad host", host: "ftp://login.microsoftonline.com", tenant: "common", err: true},
	}

	for _, test := range tests {
		got, err := NewInfo(test.host, test.tenant)
		switch {
		case err == nil && test.err:
			t.Errorf("TestNewInfo(%s): got err == nil, want err != nil", test.desc)
			continue
		case err != nil && !test.err:
			t.Errorf("TestNewInfo(%s): got err == %s, want err == nil", test.desc, err)
			continue
		case err != nil:
			continue
		}
		if diff := pretty.Compare(test.want, got); diff != "" {
			t.Errorf("TestNewInfo(%s): -want/+got:\n%s", test.desc, diff)
		}
	}
}

func TestNewAuthParams(t *testing.T) {
	info, err := NewInfo("login.microsoftonline.com", "tenant")
	if err != nil {
		t.Fatal(err)
	}
	p := NewAuthParams("client", info)
	want := Endpoints{
		TokenEndpoint:      "https://login.microsoftonline.com/tenant/oauth2/v2.0/token",
		DeviceCodeEndpoint: "https://login.microsoftonline.com/tenant/oauth2/v2.0/devicecode",
		PRTEndpoint:        "https://login.microsoftonline.com/tenant/oauth2/token",
		NonceEndpoint:      "https://login.microsoftonline.com/common/oauth2/token",
	}
	if diff := pretty.Compare(want, p.Endpoints); diff != "" {
		t.Errorf("TestNewAuthParams: endpoints -want/+got:\n%s", diff)
	}
	if p.CorrelationID == "" {
		t.Errorf("TestNewAuthParams: CorrelationID was not set")
	}
	if q := p.WithCorrelationID(); q.CorrelationID == p.CorrelationID {
		t.Errorf("TestNewAuthParams: WithCorrelationID() did not change the id")
	}
	if !TrustedHost(info.Host) {
		t.Errorf("TestNewAuthParams: TrustedHost(%q) == false", info.Host)
	}
}
