package web

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"
	"mesbridge/cmd/bridge/config"
	"mesbridge/cmd/bridge/options"
	"mesbridge/pkg/collector"
	"mesbridge/pkg/device"
	"mesbridge/pkg/generic"
	"mesbridge/pkg/host"
	"mesbridge/pkg/metrics"
)

type Server struct {
	*generic.Server
	*config.Config
}

func NewServer(router *gin.Engine, o *options.Options, config *config.Config) (*Server, error) {
	allowMethods := []string{http.MethodPost, http.MethodGet, http.MethodDelete, http.MethodPut, http.MethodPatch}

	s := &generic.Server{
		Router:  router,
		Port:    o.Port,
		Methods: allowMethods,
	}

	server := &Server{
		Server: s,
		Config: config,
	}

	server.InstallHandlers()

	return server, nil
}

func (s *Server) InstallHandlers() {
	v1 := s.Router.Group("/api/v1")
	device.InstallHandler(v1, s.Config.DeviceMgr)
	collector.InstallHandler(v1, s.Config.CollectorMgr, s.Config.HostMgr)
	host.InstallHandler(v1, s.Config.HostMgr)
	s.Router.GET("/metrics", gin.WrapH(metrics.Handler()))
}

// Serve starts acquisition and then the HTTP listener. The returned function
// stops both in reverse order.
func (s *Server) Serve(ctx context.Context) (func(ctx context.Context), error) {
	if err := s.Config.CollectorMgr.Start(ctx); err != nil {
		return nil, err
	}

	var srv *http.Server
	if len(s.Config.CertFile) != 0 && len(s.Config.KeyFile) != 0 {
		x509KeyPair, err := tls.LoadX509KeyPair(s.Config.CertFile, s.Config.KeyFile)
		if err != nil {
			_ = s.Config.CollectorMgr.Shutdown(ctx)
			return nil, err
		}
		c := &tls.Config{
			Certificates: []tls.Certificate{x509KeyPair},
		}

		srv = &http.Server{
			Addr:      fmt.Sprintf(":%s", s.Port),
			Handler:   s.Router,
			TLSConfig: c,
		}
		go func() {
			if err := srv.ListenAndServeTLS("", ""); err != nil && err != http.ErrServerClosed {
				klog.ErrorS(err, "Http server stopped")
			}
		}()
	} else {
		srv = &http.Server{
			Addr:    fmt.Sprintf(":%s", s.Port),
			Handler: s.Router,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				klog.ErrorS(err, "Http server stopped")
			}
		}()
	}

	return func(ctx context.Context) {
		srv.SetKeepAlivesEnabled(false)
		if err := srv.Shutdown(ctx); err != nil {
			klog.Error(err)
		}
		if err := s.Config.CollectorMgr.Shutdown(ctx); err != nil {
			klog.Error(err)
		}
	}, nil
}
