package reconcile

import (
	"bytes"
	"io"
	"time"

	"github.com/stagecheck/stagecheck/pkg/errors"
)

// fakeStore implements remote.Store backed by an in-memory map.
type fakeStore struct {
	files   map[string]fakeFile
	uploads map[string]int
	dirs    []string

	// corruptUploads appends a byte to every upload, so verification
	// never passes.
	corruptUploads bool

	// crlfUploads stores bare LF as CRLF, the way an FTP server in ASCII
	// mode would.
	crlfUploads bool

	sizeErr   error
	sizeErrOn string
	fetchErr  error
	uploadErr error
}

type fakeFile struct {
	contents []byte
	modTime  time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		files:   map[string]fakeFile{},
		uploads: map[string]int{},
	}
}

func (s *fakeStore) Size(path string) (int64, error) {
	if s.sizeErr != nil && (s.sizeErrOn == "" || s.sizeErrOn == path) {
		return 0, s.sizeErr
	}
	file, ok := s.files[path]
	if !ok {
		return 0, errors.RemoteNotFound{Path: path}
	}
	return int64(len(file.contents)), nil
}

func (s *fakeStore) ModTime(path string) (time.Time, error) {
	file, ok := s.files[path]
	if !ok {
		return time.Time{}, errors.RemoteNotFound{Path: path}
	}
	return file.modTime, nil
}

func (s *fakeStore) Fetch(path string, dst io.Writer) error {
	if s.fetchErr != nil {
		return s.fetchErr
	}
	file, ok := s.files[path]
	if !ok {
		return errors.RemoteNotFound{Path: path}
	}
	_, err := dst.Write(file.contents)
	return err
}

func (s *fakeStore) Upload(path string, src io.Reader) error {
	if s.uploadErr != nil {
		return s.uploadErr
	}
	s.uploads[path]++

	contents, err := io.ReadAll(src)
	if err != nil {
		return err
	}
	if s.corruptUploads {
		contents = append(contents, '#')
	}
	if s.crlfUploads {
		contents = bytes.ReplaceAll(contents, []byte("\n"), []byte("\r\n"))
	}
	s.files[path] = fakeFile{contents: contents}
	return nil
}

func (s *fakeStore) EnsureDir(dir string) error {
	s.dirs = append(s.dirs, dir)
	return nil
}

func (s *fakeStore) Close() error {
	return nil
}

func int64Ptr(v int64) *int64 {
	return &v
}

func timePtr(t time.Time) *time.Time {
	return &t
}
