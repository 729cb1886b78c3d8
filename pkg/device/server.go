package device

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	jsonpatch "github.com/evanphx/json-patch"
	"github.com/gin-gonic/gin"
	"k8s.io/apimachinery/pkg/api/equality"
	"k8s.io/apimachinery/pkg/types"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/klog/v2"
	"mesbridge/pkg/apis"
	"mesbridge/pkg/apis/response"
	"mesbridge/pkg/runtime"
	"mesbridge/pkg/runtime/constant"
	"mesbridge/pkg/utils/differenceutil"
	v1 "mesbridge/pkg/v1"
)

// deviceModel is the API view of a registered device.
type deviceModel struct {
	runtime.ObjectMeta
	*v1.Device
	CreatedDate time.Time  `json:"createdDate"`
	DeviceDate  *time.Time `json:"deviceDate,omitempty"`
	Accessing   bool       `json:"accessing"`
}

func (m *Manager) model(d *runtime.Device) *deviceModel {
	s := d.Snapshot("")
	return &deviceModel{
		ObjectMeta:  d.Meta(),
		Device:      FromRuntime(d),
		CreatedDate: s.CreatedDate,
		DeviceDate:  s.DeviceDate,
		Accessing:   m.Accessing(d.Info.DeviceName),
	}
}

func InstallHandler(group *gin.RouterGroup, mgr *Manager) {
	group.POST("/devices", createDevice(mgr))
	group.DELETE("/devices/:name", deleteDevice(mgr))
	group.PATCH("/devices/:name", patchDevice(mgr))
	group.GET("/devices", listDevices(mgr))
	group.GET("/devices/:name", getDevice(mgr))
	group.PUT("/devices/:name/:action", switchDeviceStatus(mgr))
}

func writeError(c *gin.Context, err error) {
	name := c.Param("name")
	var ce *runtime.ConfigError
	var agg utilerrors.Aggregate
	switch {
	case errors.Is(err, constant.ErrDeviceNotFound):
		c.JSON(http.StatusNotFound, response.NewMultiError(response.ErrDeviceNotFound(name)))
	case errors.Is(err, constant.ErrDeviceExists), errors.Is(err, constant.ErrDuplicateDeviceName):
		c.JSON(http.StatusConflict, response.NewMultiError(response.ErrDeviceExists(name)))
	case errors.Is(err, constant.ErrUnsupportedProtocol):
		c.JSON(http.StatusMethodNotAllowed, response.NewMultiError(response.ErrUnsupportedProtocol(string(protocolOf(c)), err)))
	case errors.Is(err, constant.ErrCollectorRunning):
		c.JSON(http.StatusConflict, response.NewMultiError(response.ErrResourceExists(name+" accessor")))
	case errors.Is(err, constant.ErrCollectorStopped):
		c.JSON(http.StatusConflict, response.NewMultiError(response.ErrResourceNotFound(name+" accessor")))
	case errors.Is(err, ErrVersionMismatch):
		c.Status(http.StatusPreconditionFailed)
	case errors.Is(err, ErrUnknownAction):
		c.JSON(http.StatusBadRequest, response.NewMultiError(response.ErrDeviceOperatorUnSupported(c.Param("action"))))
	case errors.As(err, &ce), errors.As(err, &agg):
		c.JSON(http.StatusBadRequest, response.NewMultiError(response.ErrInvalidDevice(err)))
	default:
		klog.ErrorS(err, "Device request failed", "device", name, "path", c.FullPath())
		c.Status(http.StatusInternalServerError)
	}
}

const protocolKey = "protocol"

func protocolOf(c *gin.Context) runtime.Protocol {
	if p, ok := c.Get(protocolKey); ok {
		return p.(runtime.Protocol)
	}
	return ""
}

func withProtocol(mgr *Manager, h gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(protocolKey, mgr.Protocol())
		h(c)
	}
}

func createDevice(mgr *Manager) gin.HandlerFunc {
	return withProtocol(mgr, func(c *gin.Context) {
		object := &v1.Device{}
		if err := c.ShouldBindJSON(object); err != nil {
			klog.V(2).InfoS("Failed to parse device", "err", err)
			c.JSON(http.StatusBadRequest, response.NewMultiError(response.ErrMalformedJSON))
			return
		}
		c.Params = append(c.Params, gin.Param{Key: "name", Value: object.GetDeviceName()})

		d, err := mgr.CreateDevice(object)
		if err != nil {
			writeError(c, err)
			return
		}

		meta := d.Meta()
		c.Header(apis.ETag, meta.Version)
		c.Header(apis.Location, fmt.Sprintf("https://%s%s/%s", c.Request.Host, c.Request.RequestURI, meta.Name))
		c.JSON(http.StatusCreated, mgr.model(d))
	})
}

func deleteDevice(mgr *Manager) gin.HandlerFunc {
	return withProtocol(mgr, func(c *gin.Context) {
		d, err := mgr.DeleteDevice(c.Request.Context(), c.Param("name"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, mgr.model(d))
	})
}

// patchDevice accepts a JSON patch or merge patch. Only samplingRateMs may change.
func patchDevice(mgr *Manager) gin.HandlerFunc {
	return withProtocol(mgr, func(c *gin.Context) {
		defer c.Request.Body.Close()

		contentType := c.GetHeader("Content-Type")
		// Remove "; charset=" if included in header.
		if idx := strings.Index(contentType, ";"); idx > 0 {
			contentType = contentType[:idx]
		}
		if !patchTypes.Has(contentType) {
			c.Status(http.StatusUnsupportedMediaType)
			return
		}

		patchBytes, err := io.ReadAll(c.Request.Body)
		if err != nil {
			klog.V(3).InfoS("Failed to read", "err", err)
			c.Status(http.StatusInternalServerError)
			return
		}

		old, err := mgr.GetDevice(c.Param("name"))
		if err != nil {
			writeError(c, err)
			return
		}
		oldObj := FromRuntime(old)
		versionedJS, err := json.Marshal(oldObj)
		if err != nil {
			klog.V(3).InfoS("Failed to marshal", "err", err)
			c.Status(http.StatusInternalServerError)
			return
		}

		patchedJS, err := applyJSPatch(types.PatchType(contentType), patchBytes, versionedJS)
		if err != nil {
			c.JSON(http.StatusBadRequest, response.NewMultiError(err))
			return
		}

		newObj := &v1.Device{}
		if err := json.NewDecoder(bytes.NewBuffer(patchedJS)).Decode(newObj); err != nil {
			klog.V(3).InfoS("Failed to decode", "err", err)
			c.JSON(http.StatusBadRequest, response.NewMultiError(response.ErrMalformedJSON))
			return
		}
		if field := changedImmutable(oldObj, newObj); len(field) > 0 {
			c.JSON(http.StatusBadRequest, response.NewMultiError(response.ErrImmutable(field)))
			return
		}

		updated, err := mgr.UpdateSamplingRate(c.Request.Context(), c.Param("name"), c.GetHeader(apis.IfMatch), newObj.SamplingRateMs)
		if err != nil {
			writeError(c, err)
			return
		}
		c.Header(apis.ETag, updated.Meta().Version)
		c.JSON(http.StatusOK, mgr.model(updated))
	})
}

// changedImmutable names the first field that differs apart from the sampling
// rate and the acquired tag values.
func changedImmutable(old, patched *v1.Device) string {
	if !equality.Semantic.DeepEqual(old.DeviceInfo, patched.DeviceInfo) {
		return "deviceInfo"
	}
	if !equality.Semantic.DeepEqual(tagAddresses(old.Tags), tagAddresses(patched.Tags)) {
		return "tags"
	}
	// signals form a set, their order carries no meaning
	if !differenceutil.SameSet(tagIDs(old.Signals), tagIDs(patched.Signals)) {
		return "signals"
	}
	return ""
}

func tagAddresses(tags []*v1.Tag) []v1.Tag {
	out := make([]v1.Tag, 0, len(tags))
	for _, t := range tags {
		out = append(out, v1.Tag{ID: t.ID, Name: t.Name, DataType: t.DataType})
	}
	return out
}

func tagIDs(tags []*v1.Tag) []string {
	ids := make([]string, 0, len(tags))
	for _, t := range tags {
		ids = append(ids, t.ID)
	}
	return ids
}

func listDevices(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := runtime.DeviceFilter{}
		if v := c.Query(apis.Filter); len(v) > 0 {
			if err := json.Unmarshal([]byte(v), &filter); err != nil {
				c.JSON(http.StatusBadRequest, response.NewMultiError(response.ErrMalformedJSON))
				return
			}
		}
		ds := mgr.ListDevices(&filter)
		models := make([]*deviceModel, 0, len(ds))
		for _, d := range ds {
			models = append(models, mgr.model(d))
		}
		c.JSON(http.StatusOK, &runtime.ResponseModel{Devices: models})
	}
}

func getDevice(mgr *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		d, err := mgr.GetDevice(c.Param("name"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.Header(apis.ETag, d.Meta().Version)
		c.JSON(http.StatusOK, mgr.model(d))
	}
}

func switchDeviceStatus(mgr *Manager) gin.HandlerFunc {
	return withProtocol(mgr, func(c *gin.Context) {
		if err := mgr.SwitchDeviceStatus(c.Request.Context(), c.Param("name"), c.Param("action")); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusAccepted)
	})
}

func applyJSPatch(patchType types.PatchType, patchBytes, versionedJS []byte) (patchedJS []byte, err error) {
	switch patchType {
	case types.JSONPatchType:
		patchObj, err := jsonpatch.DecodePatch(patchBytes)
		if err != nil {
			return nil, response.ErrMalformedJSON
		}
		if len(patchObj) > maxJSONPatchOperations {
			klog.V(3).InfoS("Too many json patch operations", "count", len(patchObj))
			return nil, response.ErrTooManyJsonPatchOperations(maxJSONPatchOperations)
		}
		patchedJS, err := patchObj.Apply(versionedJS)
		if err != nil {
			klog.V(3).InfoS("Failed to apply json patch", "err", err)
			return nil, response.ErrMalformedJSON
		}
		return patchedJS, nil
	case types.MergePatchType:
		patchedJS, err = jsonpatch.MergePatch(versionedJS, patchBytes)
		if err != nil {
			klog.V(3).InfoS("Failed to apply json merge patch", "err", err)
			return nil, response.ErrMalformedJSON
		}
		return patchedJS, err
	default:
		// only here as a safety net - gin filters content-type
		return nil, fmt.Errorf("unknown Content-Type header for patch: %v", patchType)
	}
}
