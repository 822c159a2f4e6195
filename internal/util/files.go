package util

import (
	"fmt"
	"io"
	"os"
)

// ConcatFiles writes the contents of srcs, in order, to dst. dst is
// truncated first; it is never appended to.
func ConcatFiles(dst string, srcs ...string) (err error) {
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()
	for _, src := range srcs {
		if err := copyFile(out, src); err != nil {
			return fmt.Errorf("concatenating %s: %w", src, err)
		}
	}
	return nil
}

func copyFile(w io.Writer, src string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	_, err = io.Copy(w, in)
	return err
}

// CreateEmpty creates path as an empty file, truncating any existing content.
func CreateEmpty(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}
