package fileutil

// Releaser releases an acquired file lock.
type Releaser interface {
	Release() error
}
