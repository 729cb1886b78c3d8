package config

import (
	"mesbridge/pkg/collector"
	"mesbridge/pkg/device"
	"mesbridge/pkg/host"
)

type Config struct {
	CollectorMgr *collector.Manager
	DeviceMgr    *device.Manager
	HostMgr      *host.Manager
	CertFile     string
	KeyFile      string
}
