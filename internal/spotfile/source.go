package spotfile

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/spotgrid/internal/model"
)

// Options configure how an export is fetched.
type Options struct {
	// FTPTimeout bounds dialing the traffic system's FTP drop. Default: 30s.
	FTPTimeout time.Duration
}

// Load reads spots from a local path or an ftp:// URL. Files ending in
// .xlsx are read as workbooks, anything else as CSV.
func Load(ctx context.Context, src string, opts Options) ([]model.Spot, error) {
	rc, err := Open(ctx, src, opts)
	if err != nil {
		return nil, err
	}
	defer rc.Close() //nolint:errcheck

	if strings.EqualFold(path.Ext(sourcePath(src)), ".xlsx") {
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, eris.Wrapf(err, "spotfile: read %s", src)
		}
		return ParseXLSX(data)
	}
	return ParseCSV(rc)
}

// Open returns a reader over the export. The caller must close it.
func Open(ctx context.Context, src string, opts Options) (io.ReadCloser, error) {
	if !strings.HasPrefix(strings.ToLower(src), "ftp://") {
		f, err := os.Open(src)
		if err != nil {
			return nil, eris.Wrapf(err, "spotfile: open %s", src)
		}
		return f, nil
	}
	return openFTP(ctx, src, opts)
}

func sourcePath(src string) string {
	if u, err := url.Parse(src); err == nil && u.Scheme == "ftp" {
		return u.Path
	}
	return src
}

type ftpTarget struct {
	host     string
	path     string
	user     string
	password string
}

// parseFTPURL extracts host (with port), path and credentials from an FTP
// URL. Missing credentials fall back to anonymous login.
func parseFTPURL(rawURL string) (ftpTarget, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ftpTarget{}, eris.Wrap(err, "spotfile: parse ftp url")
	}
	if u.Scheme != "ftp" {
		return ftpTarget{}, eris.Errorf("spotfile: expected ftp scheme, got %q", u.Scheme)
	}

	t := ftpTarget{host: u.Host, path: u.Path, user: "anonymous", password: "anonymous@"}
	if _, _, splitErr := net.SplitHostPort(t.host); splitErr != nil {
		t.host = net.JoinHostPort(t.host, "21")
	}
	if t.path == "" || t.path == "/" {
		return ftpTarget{}, eris.New("spotfile: empty path in ftp url")
	}
	if u.User != nil {
		t.user = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			t.password = pw
		}
	}
	return t, nil
}

// openFTP downloads the export into memory so the FTP session is closed
// before parsing starts.
func openFTP(ctx context.Context, rawURL string, opts Options) (io.ReadCloser, error) {
	t, err := parseFTPURL(rawURL)
	if err != nil {
		return nil, err
	}
	if opts.FTPTimeout <= 0 {
		opts.FTPTimeout = 30 * time.Second
	}

	zap.L().Debug("spotfile: ftp connecting", zap.String("host", t.host), zap.String("path", t.path))

	conn, err := ftp.Dial(t.host, ftp.DialWithTimeout(opts.FTPTimeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrap(err, "spotfile: ftp dial")
	}
	defer conn.Quit() //nolint:errcheck

	if err := conn.Login(t.user, t.password); err != nil {
		return nil, eris.Wrap(err, "spotfile: ftp login")
	}

	resp, err := conn.Retr(t.path)
	if err != nil {
		return nil, eris.Wrap(err, "spotfile: ftp retrieve")
	}
	defer resp.Close() //nolint:errcheck

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, eris.Wrap(err, "spotfile: ftp read")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}
