// Package backup archives a ledger store directory and optionally copies
// archives to S3-compatible storage. Archives are plain zip files holding
// the store's log and index files.
package backup

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Archive writes a zip of every .txt file in storeDir (logs and indexes) to
// dstPath. Entries are stored in sorted name order so two archives of the
// same store are comparable.
func Archive(storeDir, dstPath string) error {
	entries, err := os.ReadDir(storeDir)
	if err != nil {
		return err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), ".txt") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	if len(names) == 0 {
		return fmt.Errorf("no store files in %s", storeDir)
	}

	f, err := os.Create(dstPath)
	if err != nil {
		return err
	}
	zw := zip.NewWriter(f)
	for _, name := range names {
		w, err := zw.Create(name)
		if err == nil {
			err = copyFileTo(w, filepath.Join(storeDir, name))
		}
		if err != nil {
			zw.Close()
			f.Close()
			os.Remove(dstPath)
			return err
		}
	}
	err = zw.Close()
	if err2 := f.Close(); err == nil {
		err = err2
	}
	if err != nil {
		os.Remove(dstPath)
	}
	return err
}

func copyFileTo(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

// Restore unpacks an archive produced by Archive into dstDir, creating it
// if needed. Each file is written to a temp file and renamed into place so
// a failed restore never leaves a truncated log behind.
func Restore(srcPath, dstDir string) error {
	if err := os.MkdirAll(dstDir, 0755); err != nil {
		return err
	}
	zr, err := zip.OpenReader(srcPath)
	if err != nil {
		return err
	}
	defer zr.Close()

	for _, zf := range zr.File {
		name := filepath.Base(zf.Name) // no paths in our archives, be defensive anyway
		if err := restoreOne(zf, filepath.Join(dstDir, name)); err != nil {
			return fmt.Errorf("restoring %s: %w", name, err)
		}
	}
	return nil
}

func restoreOne(zf *zip.File, dstPath string) error {
	r, err := zf.Open()
	if err != nil {
		return err
	}
	defer r.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dstPath), filepath.Base(dstPath))
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	_, err = io.Copy(tmp, r)
	if err == nil {
		err = tmp.Sync()
	}
	if err2 := tmp.Close(); err == nil {
		err = err2
	}
	if err == nil {
		err = os.Rename(tmpPath, dstPath)
	}
	if err != nil {
		os.Remove(tmpPath)
	}
	return err
}
