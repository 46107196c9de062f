package writerutils

import (
	"errors"
	"io"
	"os"
)

// SafeFile flushes the file to stable storage before closing it.
type SafeFile struct {
	f *os.File
}

func NewSafeFileWriter(f *os.File) io.WriteCloser {
	return &SafeFile{f: f}
}

func (s SafeFile) Write(p []byte) (n int, err error) {
	return s.f.Write(p)
}

// ReadFrom lets io.Copy use the file's own ReadFrom.
func (s SafeFile) ReadFrom(r io.Reader) (int64, error) {
	return s.f.ReadFrom(r)
}

func (s SafeFile) Close() error {
	return errors.Join(
		s.f.Sync(),
		s.f.Close(),
	)
}
