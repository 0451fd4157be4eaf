package mirror

import (
	"fmt"
	"io"
	"os"
)

// renameFunc is replaceable so tests can simulate a failing rename.
var renameFunc = os.Rename

// copyFile copies src to dst byte for byte, keeping the permission bits and
// modification time of src. dst must not exist.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", src)
	}

	if err := writeExclusive(dst, in, info.Mode().Perm()); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}

// writeExclusive creates dst with O_EXCL and fills it from r. A partial file
// is removed on failure.
func writeExclusive(dst string, r io.Reader, perm os.FileMode) (err error) {
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = out.Close()
			_ = os.Remove(dst)
		}
	}()

	if _, err = io.Copy(out, r); err != nil {
		return err
	}
	if err = out.Sync(); err != nil {
		return err
	}
	return out.Close()
}

// renameNoClobber renames src to dst, failing with os.ErrExist when dst is
// already taken.
func renameNoClobber(src, dst string) error {
	if _, err := os.Lstat(dst); err == nil {
		return &os.LinkError{Op: "rename", Old: src, New: dst, Err: os.ErrExist}
	} else if !os.IsNotExist(err) {
		return err
	}
	return renameFunc(src, dst)
}
