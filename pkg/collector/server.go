package collector

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"mesbridge/pkg/host"
)

type statusModel struct {
	*Status
	Host *host.ResponseModel `json:"host,omitempty"`
}

func InstallHandler(group *gin.RouterGroup, mgr *Manager, hostMgr *host.Manager) {
	group.GET("/status", getStatus(mgr, hostMgr))
}

func getStatus(mgr *Manager, hostMgr *host.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		s := &statusModel{Status: mgr.Status()}
		if hostMgr != nil {
			s.Host = hostMgr.Usage(c.Request.Context())
		}
		c.JSON(http.StatusOK, s)
	}
}
