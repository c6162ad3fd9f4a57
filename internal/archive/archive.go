// Package archive packages a staged backup folder into a zip file.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Create writes a zip archive of dir's direct children to target, replacing
// any existing file. Entry names are relative to dir, so the archive root
// holds the folder's contents without an enclosing directory entry.
func Create(dir, target string) error {
	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer out.Close()

	w := zip.NewWriter(out)

	err = filepath.Walk(dir, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(rel)
		if info.IsDir() {
			header.Name += "/"
		} else {
			header.Method = zip.Deflate
		}

		entry, err := w.CreateHeader(header)
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		_, err = io.Copy(entry, f)
		return err
	})
	if err != nil {
		w.Close()
		return fmt.Errorf("archive %s: %w", dir, err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize archive: %w", err)
	}
	return nil
}
