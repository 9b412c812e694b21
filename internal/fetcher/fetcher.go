package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Fetcher downloads a remote source.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to the given path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}

// Sources resolves an ingest location to a readable stream. Locations
// without a scheme, or with file://, are read from the local filesystem.
type Sources struct {
	HTTP Fetcher
	FTP  Fetcher
}

// NewSources wires the default HTTP and FTP fetchers.
func NewSources(httpOpts HTTPOptions, ftpOpts FTPOptions) *Sources {
	return &Sources{
		HTTP: NewHTTPFetcher(httpOpts),
		FTP:  NewFTPFetcher(ftpOpts),
	}
}

// Open returns a reader for location. The caller closes it.
func (s *Sources) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	scheme := Scheme(location)
	zap.L().Debug("fetcher: open source", zap.String("scheme", scheme), zap.String("location", redact(location)))

	switch scheme {
	case "", "file":
		p := location
		if scheme == "file" {
			u, err := url.Parse(location)
			if err != nil {
				return nil, eris.Wrap(err, "fetcher: parse file url")
			}
			p = u.Path
		}
		f, err := os.Open(p)
		if err != nil {
			return nil, eris.Wrapf(err, "fetcher: open %s", p)
		}
		return f, nil
	case "http", "https":
		if s.HTTP == nil {
			return nil, eris.Errorf("fetcher: no http fetcher configured for %s", redact(location))
		}
		return s.HTTP.Download(ctx, location)
	case "ftp":
		if s.FTP == nil {
			return nil, eris.Errorf("fetcher: no ftp fetcher configured for %s", redact(location))
		}
		return s.FTP.Download(ctx, location)
	default:
		return nil, eris.Errorf("fetcher: unsupported scheme %q", scheme)
	}
}

// Fetch materializes location as a local file. Local paths are returned
// as is; remote sources are downloaded into dir.
func (s *Sources) Fetch(ctx context.Context, location, dir string) (string, error) {
	scheme := Scheme(location)
	switch scheme {
	case "":
		return location, nil
	case "file":
		u, err := url.Parse(location)
		if err != nil {
			return "", eris.Wrap(err, "fetcher: parse file url")
		}
		return u.Path, nil
	}

	var f Fetcher
	switch scheme {
	case "http", "https":
		f = s.HTTP
	case "ftp":
		f = s.FTP
	}
	if f == nil {
		return "", eris.Errorf("fetcher: unsupported scheme %q", scheme)
	}

	dest := filepath.Join(dir, "source"+Ext(location))
	n, err := f.DownloadToFile(ctx, location, dest)
	if err != nil {
		return "", eris.Wrapf(err, "fetcher: download %s", redact(location))
	}
	zap.L().Info("fetcher: downloaded source",
		zap.String("location", redact(location)),
		zap.Int64("bytes", n),
	)
	return dest, nil
}

// Scheme returns the lower-cased URL scheme of location, or "" for a
// plain filesystem path.
func Scheme(location string) string {
	i := strings.Index(location, "://")
	if i <= 0 {
		return ""
	}
	return strings.ToLower(location[:i])
}

// Ext returns the lower-cased extension of location's path, ignoring any
// query string.
func Ext(location string) string {
	p := location
	if Scheme(location) != "" {
		if u, err := url.Parse(location); err == nil {
			p = u.Path
		}
	}
	return strings.ToLower(path.Ext(p))
}

// redact drops URL userinfo so FTP passwords stay out of logs.
func redact(location string) string {
	u, err := url.Parse(location)
	if err != nil || u.User == nil {
		return location
	}
	return u.Redacted()
}
