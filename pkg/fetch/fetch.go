//go:generate mockgen -destination=mocks/fetch.go . Fetcher

// Package fetch retrieves remote files for repository syncs and package installs.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glorpus-work/pkgng/pkg/auth"
	"github.com/glorpus-work/pkgng/pkg/errors"
	"github.com/glorpus-work/pkgng/pkg/fsutil"
)

// DefaultUserAgent is sent with every HTTP request unless configured otherwise.
const DefaultUserAgent = "pkgng/1.0"

// Result describes a completed fetch.
type Result struct {
	// ModTime is the remote modification time, zero when the server did not report one.
	ModTime time.Time
	Size    int64
}

// Fetcher copies the resource at rawURL into w. When since is non-zero and
// the resource is not newer, it returns errors.ErrNotModified and writes nothing.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, w io.Writer, since time.Time) (Result, error)
}

// IsURL reports whether s names a remote or file:// resource rather than a local path.
func IsURL(s string) bool {
	for _, scheme := range []string{"http://", "https://", "ftp://", "file://"} {
		if strings.HasPrefix(s, scheme) {
			return true
		}
	}
	return false
}

// Client fetches http, https and file URLs.
type Client struct {
	client    *http.Client
	userAgent string
	auths     []siteAuth
}

type siteAuth struct {
	prefix string
	auth   auth.Authenticator
}

// NewClient creates a client with the given request timeout and user agent.
func NewClient(timeout time.Duration, userAgent string) *Client {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &Client{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// AddAuth makes requests to URLs starting with prefix carry the credentials
// of a. The longest matching prefix wins.
func (c *Client) AddAuth(prefix string, a auth.Authenticator) {
	c.auths = append(c.auths, siteAuth{prefix: strings.TrimRight(prefix, "/") + "/", auth: a})
}

func (c *Client) authFor(rawURL string) auth.Authenticator {
	var best *siteAuth
	for i, sa := range c.auths {
		if strings.HasPrefix(rawURL, sa.prefix) && (best == nil || len(sa.prefix) > len(best.prefix)) {
			best = &c.auths[i]
		}
	}
	if best == nil {
		return nil
	}
	return best.auth
}

// Fetch implements Fetcher.
func (c *Client) Fetch(ctx context.Context, rawURL string, w io.Writer, since time.Time) (Result, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Result{}, errors.Parse("parse url", rawURL, err)
	}
	switch u.Scheme {
	case "http", "https":
		return c.fetchHTTP(ctx, u, w, since)
	case "file":
		return fetchLocal(u.Path, w, since)
	default:
		return Result{}, errors.IO("fetch", rawURL, fmt.Errorf("unsupported scheme %q", u.Scheme))
	}
}

func (c *Client) fetchHTTP(ctx context.Context, u *url.URL, w io.Writer, since time.Time) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return Result{}, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	if a := c.authFor(u.String()); a != nil {
		if err := a.Apply(req); err != nil {
			return Result{}, errors.Wrapf(err, "%s credentials for %s", a.Type(), u.Host)
		}
	}
	if !since.IsZero() {
		req.Header.Set("If-Modified-Since", since.UTC().Format(http.TimeFormat))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Result{}, errors.IO("fetch", u.String(), err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotModified:
		return Result{}, errors.ErrNotModified
	case http.StatusUnauthorized, http.StatusForbidden:
		return Result{}, errors.Permission("fetch", u.String(), fmt.Errorf("HTTP %d", resp.StatusCode))
	case http.StatusNotFound:
		return Result{}, errors.NotFound("fetch", u.String(), fmt.Errorf("HTTP %d", resp.StatusCode))
	default:
		return Result{}, errors.IO("fetch", u.String(), fmt.Errorf("unexpected status code: %d", resp.StatusCode))
	}

	var res Result
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			res.ModTime = t
		}
	}
	if !since.IsZero() && !res.ModTime.IsZero() && !res.ModTime.After(since) {
		return Result{}, errors.ErrNotModified
	}

	res.Size, err = io.Copy(w, resp.Body)
	if err != nil {
		return Result{}, errors.IO("fetch", u.String(), err)
	}
	return res, nil
}

func fetchLocal(path string, w io.Writer, since time.Time) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{}, errors.NotFound("fetch", path, err)
		}
		return Result{}, errors.IO("fetch", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Result{}, errors.IO("fetch", path, err)
	}
	// HTTP dates have second precision, keep file:// consistent with them
	mtime := info.ModTime().Truncate(time.Second)
	if !since.IsZero() && !mtime.After(since) {
		return Result{}, errors.ErrNotModified
	}

	n, err := io.Copy(w, f)
	if err != nil {
		return Result{}, errors.IO("fetch", path, err)
	}
	return Result{ModTime: mtime, Size: n}, nil
}

// ToFile fetches rawURL into dest. The data is written to a temporary file
// next to dest and renamed into place once complete and, when checksum is
// set, verified. An existing dest with a matching checksum is reused.
func ToFile(ctx context.Context, f Fetcher, rawURL, dest, checksum string) (Result, error) {
	if info, err := os.Stat(dest); err == nil && info.Size() > 0 && checksum != "" {
		if ok, _ := verifySHA256(dest, checksum); ok {
			return Result{ModTime: info.ModTime(), Size: info.Size()}, nil
		}
	}
	if err := fsutil.EnsureFileDir(dest); err != nil {
		return Result{}, errors.IO("create directory", filepath.Dir(dest), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".fetch-*")
	if err != nil {
		return Result{}, errors.IO("create temporary file", dest, err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	res, err := f.Fetch(ctx, rawURL, tmp, time.Time{})
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = errors.IO("write", tmpPath, cerr)
	}
	if err != nil {
		return Result{}, err
	}

	if checksum != "" {
		ok, err := verifySHA256(tmpPath, checksum)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			return Result{}, errors.Integrity("verify checksum", rawURL, fmt.Errorf("checksum mismatch"))
		}
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return Result{}, errors.IO("rename", dest, err)
	}
	if !res.ModTime.IsZero() {
		_ = os.Chtimes(dest, res.ModTime, res.ModTime)
	}
	return res, nil
}

func verifySHA256(path, want string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, errors.IO("open", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return false, errors.IO("read", path, err)
	}
	return strings.EqualFold(hex.EncodeToString(h.Sum(nil)), want), nil
}
