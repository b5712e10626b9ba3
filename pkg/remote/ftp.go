package remote

import (
	"crypto/tls"
	goerrors "errors"
	"fmt"
	"io"
	"net/textproto"
	"path"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/stagecheck/stagecheck/pkg/errors"
)

// ftpStore implements Store over an FTP (or FTPS) connection.
type ftpStore struct {
	conn *ftp.ServerConn
	root string
}

// Dial connects and logs in to the target described by the given config.
func Dial(cfg Config) (Store, error) {
	opts := []ftp.DialOption{
		ftp.DialWithTimeout(time.Duration(cfg.TimeoutSeconds) * time.Second),
	}
	if !cfg.DisableTLS {
		opts = append(opts, ftp.DialWithExplicitTLS(&tls.Config{
			ServerName: cfg.Host,
		}))
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	conn, err := ftp.Dial(addr, opts...)
	if err != nil {
		return nil, errors.WithContext(err, "dial")
	}

	if err := conn.Login(cfg.User, cfg.Password); err != nil {
		conn.Quit()
		return nil, errors.WithContext(err, "login")
	}

	return &ftpStore{conn: conn, root: cfg.RemoteRoot}, nil
}

func (s *ftpStore) Size(p string) (int64, error) {
	size, err := s.conn.FileSize(s.abs(p))
	if err != nil {
		if isNotFound(err) {
			return 0, errors.RemoteNotFound{Path: p}
		}
		return 0, errors.WithContext(err, "probe size")
	}
	return size, nil
}

func (s *ftpStore) ModTime(p string) (time.Time, error) {
	modTime, err := s.conn.GetTime(s.abs(p))
	if err != nil {
		if isNotFound(err) {
			return time.Time{}, errors.RemoteNotFound{Path: p}
		}
		// Not all servers implement MDTM. Timestamps are advisory, so
		// treat them as unknown rather than failing the probe.
		return time.Time{}, nil
	}
	return modTime, nil
}

func (s *ftpStore) Fetch(p string, dst io.Writer) error {
	resp, err := s.conn.Retr(s.abs(p))
	if err != nil {
		if isNotFound(err) {
			return errors.RemoteNotFound{Path: p}
		}
		return errors.WithContext(err, "retrieve")
	}
	defer resp.Close()

	if _, err := io.Copy(dst, resp); err != nil {
		return errors.WithContext(err, "read")
	}
	return nil
}

func (s *ftpStore) Upload(p string, src io.Reader) error {
	if err := s.conn.Stor(s.abs(p), src); err != nil {
		return errors.WithContext(err, "store")
	}
	return nil
}

// EnsureDir creates each missing ancestor from the deployment root down.
// Every MakeDir uses an absolute path, so the result doesn't depend on the
// connection's current directory. Errors are ignored because most servers
// fail MakeDir for directories that already exist.
func (s *ftpStore) EnsureDir(dir string) error {
	for _, ancestor := range ancestorDirs(s.root, dir) {
		s.conn.MakeDir(ancestor)
	}
	return nil
}

func (s *ftpStore) Close() error {
	return s.conn.Quit()
}

func (s *ftpStore) abs(p string) string {
	return path.Join(s.root, p)
}

// ancestorDirs returns the absolute path of every directory level of dir
// below the root, shallowest first.
func ancestorDirs(root, dir string) []string {
	cleaned := path.Clean(dir)
	if cleaned == "." || cleaned == "/" {
		return nil
	}

	var dirs []string
	current := root
	for _, segment := range strings.Split(cleaned, "/") {
		if segment == "" {
			continue
		}
		current = path.Join(current, segment)
		dirs = append(dirs, current)
	}
	return dirs
}

// isNotFound reports whether the server replied 550, which is how missing
// files surface over FTP.
func isNotFound(err error) bool {
	var protoErr *textproto.Error
	if goerrors.As(err, &protoErr) {
		return protoErr.Code == ftp.StatusFileUnavailable
	}
	return false
}
