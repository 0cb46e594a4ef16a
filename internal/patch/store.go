package patch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DirStore is a FileStore rooted at the extracted app directory. Relative
// paths are confined to the root; anything escaping it is rejected.
type DirStore struct {
	Root string
}

func NewDirStore(root string) *DirStore { return &DirStore{Root: root} }

func (d *DirStore) resolve(rel string) (string, error) {
	full := filepath.Join(d.Root, filepath.FromSlash(rel))
	if !strings.HasPrefix(full, filepath.Clean(d.Root)+string(os.PathSeparator)) {
		return "", fmt.Errorf("path escapes root: %s", rel)
	}
	return full, nil
}

func (d *DirStore) Read(rel string) (string, error) {
	full, err := d.resolve(rel)
	if err != nil {
		return "", err
	}
	b, err := os.ReadFile(full)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *DirStore) Write(rel string, content string) error {
	full, err := d.resolve(rel)
	if err != nil {
		return err
	}
	return os.WriteFile(full, []byte(content), 0o644)
}
