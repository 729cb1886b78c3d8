package storage

import (
	"time"
)

// resources
const (
	// device
	Devices = "devices"
)

type Getter interface {
	Get(key string) ([]byte, error)
}

type Lister interface {
	List(key string) ([]*FileInfo, error)
}

type Creater interface {
	Create(key string, obj interface{}) error
}

type Updater interface {
	Update(key string, obj interface{}) error
}

type Deleter interface {
	Delete(key string) error
}

type Storage interface {
	Getter
	Lister
	Creater
	Updater
	Deleter
}

type FileInfo struct {
	Path    string
	ModTime time.Time
}
