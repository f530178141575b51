package main

import (
	"os"

	"github.com/coldstore/pagecache"
)

// fileSource adapts an *os.File to pagecache.Source: the one place in
// this repository that talks to a real disk file rather than an
// abstract data source.
type fileSource struct {
	f    *os.File
	path string
	mode int
}

func openFileSource(path string, mode int) (*fileSource, error) {
	flags := os.O_CREATE
	switch mode {
	case pagecache.ModeRead:
		flags |= os.O_RDONLY
	case pagecache.ModeWrite:
		flags |= os.O_WRONLY
	case pagecache.ModeReadWrite:
		flags |= os.O_RDWR
	}

	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, pagecache.WrapSourceError(pagecache.OpOpen, path, err)
	}
	return &fileSource{f: f, path: path, mode: mode}, nil
}

func (s *fileSource) ReadAt(p []byte, off int64) (int, error) {
	return s.f.ReadAt(p, off)
}

func (s *fileSource) WriteAt(p []byte, off int64) error {
	_, err := s.f.WriteAt(p, off)
	return err
}

func (s *fileSource) Size() (int64, error) {
	info, err := s.f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (s *fileSource) Close() error {
	return s.f.Close()
}

func (s *fileSource) Reopen(mode int) (pagecache.Source, error) {
	return openFileSource(s.path, mode)
}
