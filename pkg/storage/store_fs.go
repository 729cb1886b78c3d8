package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"golang.org/x/mod/sumdb"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/klog/v2"
	"mesbridge/pkg/utils/fileutil"
)

// FsClient keeps one JSON document per key below a root directory.
type FsClient struct {
	storePath string
}

var _ Storage = (*FsClient)(nil)

// NewFsClient prepares root and the resource directories below it.
// An empty root falls back to the per-user default location.
func NewFsClient(root string, resources ...string) (*FsClient, error) {
	if len(root) == 0 {
		root = defaultStorePath()
	}
	fc := &FsClient{storePath: root}
	for _, m := range resources {
		p := filepath.Join(root, m)
		_, err := os.Stat(p)
		if os.IsNotExist(err) {
			absPath, _ := filepath.Abs(p)
			klog.V(2).InfoS("Created", "path", absPath)
			if err = os.MkdirAll(p, 0711); err != nil {
				return nil, errors.Wrapf(err, "create %s", p)
			}
		} else if err != nil {
			return nil, errors.Wrapf(err, "stat %s", p)
		}
	}
	return fc, nil
}

func (fc *FsClient) Root() string {
	return fc.storePath
}

func (fc *FsClient) Create(key string, obj interface{}) error {
	f, err := os.OpenFile(filepath.Join(fc.storePath, key), os.O_CREATE|os.O_RDWR|os.O_EXCL, 0640)
	if err != nil {
		klog.V(2).InfoS("Failed to create file", "key", key, "err", err)
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err = enc.Encode(obj); err != nil {
		klog.V(2).InfoS("Failed to encode", "key", key, "err", err)
		return err
	}
	return nil
}

func (fc *FsClient) Get(key string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(fc.storePath, key))
	if err != nil {
		klog.V(2).InfoS("Failed to read", "key", key, "err", err)
		return nil, err
	}
	return data, nil
}

func (fc *FsClient) List(key string) ([]*FileInfo, error) {
	var files []*FileInfo
	err := filepath.Walk(filepath.Join(fc.storePath, key), func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			files = append(files, &FileInfo{
				Path:    path,
				ModTime: info.ModTime(),
			})
		}
		return nil
	})
	if err != nil {
		klog.V(2).InfoS("Failed to list", "key", key, "err", err)
		return nil, err
	}
	return files, nil
}

// Delete removes key while holding its file lock, retrying while another process
// briefly holds the file open.
func (fc *FsClient) Delete(key string) error {
	p := filepath.Join(fc.storePath, key)
	f, err := os.OpenFile(p, os.O_RDONLY, 0640)
	if err != nil {
		if os.IsNotExist(err) {
			return os.ErrNotExist
		} else if isEphemeralError(err) {
			return sumdb.ErrWriteConflict
		}
		return err
	}

	lock, err := fileutil.NewLock(f)
	if err != nil {
		_ = f.Close()
		klog.V(2).InfoS("Failed to lock", "key", key, "err", err)
		return sumdb.ErrWriteConflict
	}
	_ = lock.Release()
	_ = f.Close()

	var removeErr error
	c, cancel := context.WithCancel(context.Background())
	wait.UntilWithContext(c, func(ctx context.Context) {
		if err := os.Remove(p); !isEphemeralError(err) {
			removeErr = err
			cancel()
		}
	}, 0)
	if removeErr != nil {
		klog.V(2).InfoS("Failed to remove", "key", key, "err", removeErr)
	}
	return removeErr
}

func (fc *FsClient) Update(key string, obj interface{}) error {
	f, err := os.OpenFile(filepath.Join(fc.storePath, key), os.O_RDWR, 0640)
	if err != nil {
		if os.IsNotExist(err) {
			return os.ErrNotExist
		} else if isEphemeralError(err) {
			return sumdb.ErrWriteConflict
		}
		return err
	}
	defer f.Close()

	lock, err := fileutil.NewLock(f)
	if err != nil {
		klog.V(2).InfoS("Failed to lock", "key", key, "err", err)
		return sumdb.ErrWriteConflict
	}
	defer lock.Release()

	if err = f.Truncate(0); err != nil {
		return errors.Wrap(err, "truncate")
	}
	if _, err = f.Seek(0, 0); err != nil {
		return errors.Wrap(err, "seek")
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(obj)
}
