package output

import (
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/disiqueira/gotree/v3"
)

// FileTree is a directory tree built up from relative paths.
type FileTree struct {
	tree gotree.Tree
	dirs map[string]gotree.Tree
}

// NewFileTree returns an empty tree labelled rootLabel.
func NewFileTree(rootLabel string) FileTree {
	return FileTree{tree: gotree.New(rootLabel), dirs: make(map[string]gotree.Tree)}
}

func (t FileTree) dir(dirPath string) gotree.Tree {
	if dirPath == "." {
		return t.tree
	}
	d := t.dirs[dirPath]
	if d == nil {
		d = t.dir(filepath.Dir(dirPath)).Add(filepath.Base(dirPath) + "/")
		t.dirs[dirPath] = d
	}
	return d
}

// AddDir inserts a directory, creating its parents as needed.
func (t FileTree) AddDir(relPath string) {
	t.dir(filepath.Clean(relPath))
}

// AddFile inserts a file below its parent directory.
func (t FileTree) AddFile(relPath string) {
	relPath = filepath.Clean(relPath)
	t.dir(filepath.Dir(relPath)).Add(filepath.Base(relPath))
}

// Render returns the tree drawn with box characters.
func (t FileTree) Render() string {
	return t.tree.Print()
}

// RenderTree walks root and draws every directory and file below it.
func RenderTree(root string) (string, error) {
	t := NewFileTree(filepath.Base(root) + "/")
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if d.IsDir() {
			t.AddDir(rel)
		} else {
			t.AddFile(rel)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to walk %s: %w", root, err)
	}
	return t.Render(), nil
}
