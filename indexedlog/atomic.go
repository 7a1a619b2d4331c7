package indexedlog

import (
	"os"
	"path/filepath"
	"strings"
)

// writeLinesAtomic replaces path with the given lines by writing a temp file
// in the same directory and renaming it over the destination, so readers
// never observe a partially written file.
func writeLinesAtomic(path string, lines []string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path))
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	// delete the temporary file in case of errors
	didRename := false
	defer func() {
		if !didRename {
			_ = os.Remove(tmpPath)
		}
	}()

	var sb strings.Builder
	for _, line := range lines {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	_, err = tmp.WriteString(sb.String())
	if err != nil {
		tmp.Close()
		return err
	}
	// https://www.joeshaw.org/dont-defer-close-on-writable-files/
	err = tmp.Sync()
	if err != nil {
		tmp.Close()
		return err
	}
	err = tmp.Close()
	if err != nil {
		return err
	}

	err = os.Rename(tmpPath, path)
	didRename = (err == nil)
	if err != nil {
		return err
	}
	// sync directory after rename for extra protection against crashes
	fdir, _ := os.Open(dir)
	if fdir != nil {
		_ = fdir.Sync()
		_ = fdir.Close()
	}
	return nil
}
