package host

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"mesbridge/pkg/apis"
)

func InstallHandler(group *gin.RouterGroup, mgr *Manager) {
	group.GET("/host/meta", getBridgeMeta(mgr))
	group.GET("/host/cpu", getHostCpu(mgr))
	group.GET("/host/mem", getHostMem(mgr))
	group.GET("/host/disk", getHostDisk(mgr))
}

func getBridgeMeta(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		g := mgr.GetBridgeMeta()
		c.Header(apis.ETag, g.GetVersion())
		c.JSON(http.StatusOK, g)
	}
}

func getHostCpu(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		cpu, err := mgr.getHostCpu(c.Request.Context())
		if err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, ResponseModel{Cpus: cpu})
	}
}

func getHostMem(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		mem, err := mgr.getHostMem(c.Request.Context())
		if err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, ResponseModel{Mem: mem})
	}
}

func getHostDisk(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		disks, err := mgr.getHostDisk(c.Request.Context())
		if err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, ResponseModel{Disks: disks})
	}
}
