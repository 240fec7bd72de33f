package auth_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glorpus-work/pkgng/pkg/auth"
	"github.com/glorpus-work/pkgng/pkg/config"
)

func newRequest(t *testing.T) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, "https://pkg.example.org/packagesite.txz", http.NoBody)
	require.NoError(t, err)
	return req
}

func TestBasic(t *testing.T) {
	tests := []struct {
		name     string
		username string
		password string
		expected string
	}{
		{name: "with password", username: "user", password: "pass", expected: "Basic dXNlcjpwYXNz"},
		{name: "empty password", username: "user", expected: "Basic dXNlcjo="},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := newRequest(t)
			b := auth.Basic{Username: tt.username, Password: tt.password}

			require.NoError(t, b.Apply(req))
			assert.Equal(t, tt.expected, req.Header.Get("Authorization"))
			assert.Equal(t, auth.BasicAuthType, b.Type())
		})
	}
}

func TestHeaders(t *testing.T) {
	req := newRequest(t)
	h := auth.Headers{"X-API-Key": "test-key", "x-client-id": "client-123"}

	require.NoError(t, h.Apply(req))
	assert.Equal(t, "test-key", req.Header.Get("X-Api-Key"))
	assert.Equal(t, "client-123", req.Header.Get("X-Client-Id"))
	assert.Equal(t, auth.HeaderAuthType, h.Type())
}

func TestBearer(t *testing.T) {
	req := newRequest(t)
	require.NoError(t, auth.Bearer{Token: "test-token-123"}.Apply(req))
	assert.Equal(t, "Bearer test-token-123", req.Header.Get("Authorization"))

	req = newRequest(t)
	assert.Error(t, auth.Bearer{}.Apply(req))
	assert.Empty(t, req.Header.Get("Authorization"))
}

func TestStringHidesSecrets(t *testing.T) {
	for _, a := range []auth.Authenticator{
		auth.Basic{Username: "builder", Password: "s3cret"},
		auth.Bearer{Token: "s3cret"},
		auth.Headers{"x-token": "s3cret", "X-Client": "s3cret"},
	} {
		s := fmt.Sprint(a)
		assert.NotContains(t, s, "s3cret")
		assert.NotEmpty(t, s)
	}
	assert.Equal(t, "headers X-Client, X-Token", fmt.Sprint(auth.Headers{"x-token": "a", "X-Client": "b"}))
}

func TestFromConfig(t *testing.T) {
	t.Setenv("PKG_TEST_SECRET", "s3cret")
	t.Setenv("PKG_TEST_EMPTY", "")

	tests := []struct {
		name    string
		cfg     *config.AuthConfig
		want    auth.Authenticator
		wantErr string
	}{
		{
			name: "basic expands environment",
			cfg:  &config.AuthConfig{Type: "basic", Username: "builder", Password: "$PKG_TEST_SECRET"},
			want: auth.Basic{Username: "builder", Password: "s3cret"},
		},
		{
			name: "bearer",
			cfg:  &config.AuthConfig{Type: "bearer", Token: "${PKG_TEST_SECRET}"},
			want: auth.Bearer{Token: "s3cret"},
		},
		{
			name: "header",
			cfg:  &config.AuthConfig{Type: "header", Headers: map[string]string{"X-Token": "$PKG_TEST_SECRET"}},
			want: auth.Headers{"X-Token": "s3cret"},
		},
		{
			name:    "unset variable",
			cfg:     &config.AuthConfig{Type: "bearer", Token: "$PKG_TEST_EMPTY"},
			wantErr: `token "$PKG_TEST_EMPTY" is empty after expansion`,
		},
		{
			name:    "header without value",
			cfg:     &config.AuthConfig{Type: "header", Headers: map[string]string{"X-Token": "${PKG_TEST_EMPTY}"}},
			wantErr: "header X-Token",
		},
		{name: "no headers", cfg: &config.AuthConfig{Type: "header"}, wantErr: "without headers"},
		{name: "unknown", cfg: &config.AuthConfig{Type: "digest"}, wantErr: `unknown auth type "digest"`},
		{name: "nil", wantErr: "no auth configured"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := auth.FromConfig(tt.cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
