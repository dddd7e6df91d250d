// Package archive makes compressed tarballs.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"io"
	"os"
	"path/filepath"
)

// TarGz writes files into a gzip'ed tarball at dest.
//
// Entries are named by base names of files. Files which do not exist are skipped.
// When no files are written, dest is not left.
//
// # Returns
//
// - int: the number of entries written.
//
// - error
func TarGz(dest string, files ...string) (int, error) {
	existing := make([]string, 0, len(files))
	for _, f := range files {
		info, err := os.Stat(f)
		if errors.Is(err, os.ErrNotExist) {
			continue
		} else if err != nil {
			return 0, err
		}
		if !info.Mode().IsRegular() {
			continue
		}
		existing = append(existing, f)
	}
	if len(existing) == 0 {
		return 0, nil
	}

	out, err := os.Create(dest)
	if err != nil {
		return 0, err
	}

	n, err := write(out, existing)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dest)
		return 0, err
	}
	return n, nil
}

func write(w io.Writer, files []string) (int, error) {
	gw := gzip.NewWriter(w)
	tw := tar.NewWriter(gw)

	n := 0
	for _, f := range files {
		if err := add(tw, f); err != nil {
			return n, err
		}
		n += 1
	}

	if err := tw.Close(); err != nil {
		return n, err
	}
	return n, gw.Close()
}

func add(tw *tar.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = filepath.Base(path)

	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err = io.Copy(tw, f)
	return err
}
