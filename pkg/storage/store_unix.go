//go:build !windows

package storage

import (
	"errors"
	"os/user"
	"path/filepath"

	"golang.org/x/sys/unix"
	"k8s.io/klog/v2"
)

func defaultStorePath() string {
	if u, err := user.Current(); err == nil {
		return filepath.Join(u.HomeDir, ".mesbridge")
	} else {
		klog.ErrorS(err, "Failed to get home dir")
		return "./mesbridge"
	}
}

func isEphemeralError(err error) bool {
	switch {
	case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EBUSY), errors.Is(err, unix.EINTR):
		return true
	}
	return false
}
