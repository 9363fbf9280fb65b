// Package source resolves an export location to a local file, downloading
// it first when it lives on an HTTP or FTP server.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jlaffaye/ftp"

	"github.com/lox/healthdash/internal/httputil"
	"github.com/lox/healthdash/internal/logging"
	"github.com/lox/healthdash/internal/metrics"
)

const defaultFileName = "export.zip"

// ErrUnsupportedScheme is returned for locations other than local paths,
// file://, http(s):// and ftp://.
var ErrUnsupportedScheme = errors.New("unsupported location scheme")

type Fetcher struct {
	dir        string
	client     *http.Client
	maxElapsed time.Duration
	initial    time.Duration
	log        *slog.Logger
}

// NewFetcher returns a Fetcher that downloads into dir.
func NewFetcher(dir string) *Fetcher {
	return &Fetcher{
		dir:        dir,
		client:     httputil.NewClient(httputil.DownloadTimeout),
		maxElapsed: 2 * time.Minute,
		initial:    backoff.DefaultInitialInterval,
		log:        logging.Component("source"),
	}
}

// Fetch returns a local path for location. Local paths are checked and
// returned unchanged; remote documents are downloaded into the fetcher's
// directory.
func (f *Fetcher) Fetch(ctx context.Context, location string) (string, error) {
	u, err := url.Parse(location)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// No scheme, or a Windows drive letter.
		return localFile(location)
	}

	var p string
	switch u.Scheme {
	case "file":
		return localFile(u.Path)
	case "http", "https":
		p, err = f.fetchHTTP(ctx, u)
	case "ftp":
		p, err = f.fetchFTP(ctx, u)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedScheme, u.Scheme)
	}

	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.SourceFetchesTotal.WithLabelValues(u.Scheme, status).Inc()
	return p, err
}

func localFile(p string) (string, error) {
	info, err := os.Stat(p)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", p, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", p)
	}
	return p, nil
}

func (f *Fetcher) backOff(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = f.initial
	bo.MaxElapsedTime = f.maxElapsed
	return backoff.WithContext(bo, ctx)
}

// target is the download destination for a remote path.
func (f *Fetcher) target(remotePath string) string {
	name := path.Base(remotePath)
	if name == "" || name == "." || name == "/" {
		name = defaultFileName
	}
	return filepath.Join(f.dir, name)
}

func (f *Fetcher) fetchHTTP(ctx context.Context, u *url.URL) (string, error) {
	dst := f.target(u.Path)
	log := f.log.With("url", u.Redacted())

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build request: %w", err))
		}
		resp, err := f.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return fmt.Errorf("fetch export: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("fetch export: status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return backoff.Permanent(fmt.Errorf("fetch export: status %d: %s", resp.StatusCode, strings.TrimSpace(string(b))))
		}

		return writeFile(dst, resp.Body)
	}

	notify := func(err error, wait time.Duration) {
		log.Warn("download failed, retrying", "error", err, "wait", wait)
	}
	if err := backoff.RetryNotify(operation, f.backOff(ctx), notify); err != nil {
		return "", err
	}
	log.Info("export downloaded", "path", dst)
	return dst, nil
}

// ftpTarget splits an ftp:// URL into dial address, credentials and path.
// Without credentials the login is anonymous.
func ftpTarget(u *url.URL) (addr, user, pass, remotePath string) {
	addr = u.Host
	if u.Port() == "" {
		addr += ":21"
	}
	user, pass = "anonymous", "anonymous"
	if u.User != nil {
		user = u.User.Username()
		if p, ok := u.User.Password(); ok {
			pass = p
		}
	}
	return addr, user, pass, u.Path
}

func (f *Fetcher) fetchFTP(ctx context.Context, u *url.URL) (string, error) {
	addr, user, pass, remotePath := ftpTarget(u)
	dst := f.target(remotePath)
	log := f.log.With("host", u.Host, "path", remotePath)

	operation := func() error {
		conn, err := ftp.Dial(addr, ftp.DialWithTimeout(30*time.Second), ftp.DialWithContext(ctx))
		if err != nil {
			return fmt.Errorf("ftp dial: %w", err)
		}
		defer conn.Quit()

		if err := conn.Login(user, pass); err != nil {
			return backoff.Permanent(fmt.Errorf("ftp login: %w", err))
		}

		resp, err := conn.Retr(remotePath)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("ftp retr: %w", err))
		}
		defer resp.Close()

		return writeFile(dst, resp)
	}

	notify := func(err error, wait time.Duration) {
		log.Warn("ftp download failed, retrying", "error", err, "wait", wait)
	}
	if err := backoff.RetryNotify(operation, f.backOff(ctx), notify); err != nil {
		return "", err
	}
	log.Info("export downloaded", "path", dst)
	return dst, nil
}

// writeFile replaces dst with the contents of r.
func writeFile(dst string, r io.Reader) error {
	out, err := os.Create(dst)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("create %s: %w", dst, err))
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("download: %w", err)
	}
	if err := out.Close(); err != nil {
		return backoff.Permanent(fmt.Errorf("close %s: %w", dst, err))
	}
	return nil
}
