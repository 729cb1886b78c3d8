package storage

import (
	"errors"
	"os/user"
	"path/filepath"
	"syscall"

	"golang.org/x/sys/windows"
	"k8s.io/klog/v2"
)

func defaultStorePath() string {
	if u, err := user.Current(); err == nil {
		return filepath.Join(u.HomeDir, "mesbridge")
	} else {
		klog.ErrorS(err, "Failed to get home dir")
		return "./mesbridge"
	}
}

func isEphemeralError(err error) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case windows.ERROR_SHARING_VIOLATION:
			return true
		}
	}
	return false
}
