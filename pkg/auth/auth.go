// Package auth applies repository credentials to HTTP requests.
//
//go:generate mockgen -destination=./mocks/auth.go . Authenticator
package auth

import (
	"fmt"
	"net/http"
	"os"
	"slices"
	"strings"

	"github.com/glorpus-work/pkgng/pkg/config"
)

// Authenticator adds credentials to an outgoing request.
type Authenticator interface {
	Apply(req *http.Request) error
	Type() Type
}

// Type names a credential scheme as written in a repository's auth section.
type Type string

// Credential schemes.
const (
	BasicAuthType  Type = "basic"
	HeaderAuthType Type = "header"
	BearerAuthType Type = "bearer"
)

// Basic sends HTTP Basic credentials.
type Basic struct {
	Username string
	Password string
}

// Bearer sends an Authorization: Bearer token.
type Bearer struct {
	Token string
}

// Headers sets arbitrary request headers, e.g. an API key.
type Headers map[string]string

// FromConfig builds the authenticator of a repository's auth section.
// $VAR and ${VAR} references are expanded; a required value that expands
// to nothing is an error, so a missing environment variable is reported
// here rather than as a 401 from the server.
func FromConfig(c *config.AuthConfig) (Authenticator, error) {
	if c == nil {
		return nil, fmt.Errorf("no auth configured")
	}
	switch Type(c.Type) {
	case BasicAuthType:
		user, err := expand("username", c.Username)
		if err != nil {
			return nil, err
		}
		return Basic{Username: user, Password: os.ExpandEnv(c.Password)}, nil
	case BearerAuthType:
		token, err := expand("token", c.Token)
		if err != nil {
			return nil, err
		}
		return Bearer{Token: token}, nil
	case HeaderAuthType:
		if len(c.Headers) == 0 {
			return nil, fmt.Errorf("header auth without headers")
		}
		h := make(Headers, len(c.Headers))
		for name, raw := range c.Headers {
			v, err := expand("header "+name, raw)
			if err != nil {
				return nil, err
			}
			h[name] = v
		}
		return h, nil
	default:
		return nil, fmt.Errorf("unknown auth type %q", c.Type)
	}
}

func expand(field, raw string) (string, error) {
	v := os.ExpandEnv(raw)
	if v != "" {
		return v, nil
	}
	if raw == "" {
		return "", fmt.Errorf("%s is empty", field)
	}
	return "", fmt.Errorf("%s %q is empty after expansion", field, raw)
}

// Apply implements Authenticator.
func (b Basic) Apply(req *http.Request) error {
	req.SetBasicAuth(b.Username, b.Password)
	return nil
}

// Type implements Authenticator.
func (Basic) Type() Type { return BasicAuthType }

func (b Basic) String() string { return "basic auth as " + b.Username }

// Apply implements Authenticator.
func (b Bearer) Apply(req *http.Request) error {
	if b.Token == "" {
		return fmt.Errorf("empty bearer token")
	}
	req.Header.Set("Authorization", "Bearer "+b.Token)
	return nil
}

// Type implements Authenticator.
func (Bearer) Type() Type { return BearerAuthType }

func (Bearer) String() string { return "bearer token" }

// Apply implements Authenticator.
func (h Headers) Apply(req *http.Request) error {
	for name, v := range h {
		req.Header.Set(name, v)
	}
	return nil
}

// Type implements Authenticator.
func (Headers) Type() Type { return HeaderAuthType }

// String lists the header names only.
func (h Headers) String() string {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, http.CanonicalHeaderKey(name))
	}
	slices.Sort(names)
	return "headers " + strings.Join(names, ", ")
}
