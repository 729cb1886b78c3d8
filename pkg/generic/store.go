package generic

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
	"mesbridge/pkg/runtime/constant"
	"mesbridge/pkg/storage"
	v1 "mesbridge/pkg/v1"
)

const fileExt = ".json"

// Store maps device configuration documents onto files of one storage resource.
type Store struct {
	Resource string
	client   storage.Storage
}

func NewStore(client storage.Storage, resource string) *Store {
	return &Store{Resource: resource, client: client}
}

func (s *Store) key(name string) string {
	return filepath.Join(s.Resource, name+fileExt)
}

func (s *Store) Create(d *v1.Device) error {
	if err := s.client.Create(s.key(d.GetDeviceName()), d); err != nil {
		if os.IsExist(err) {
			return constant.ErrDeviceExists
		}
		return errors.Wrapf(err, "store device %s", d.GetDeviceName())
	}
	return nil
}

func (s *Store) Update(d *v1.Device) error {
	if err := s.client.Update(s.key(d.GetDeviceName()), d); err != nil {
		if os.IsNotExist(err) {
			return constant.ErrDeviceNotFound
		}
		return errors.Wrapf(err, "update device %s", d.GetDeviceName())
	}
	return nil
}

func (s *Store) Delete(name string) error {
	if err := s.client.Delete(s.key(name)); err != nil {
		if os.IsNotExist(err) {
			return constant.ErrDeviceNotFound
		}
		return errors.Wrapf(err, "delete device %s", name)
	}
	return nil
}

// LoadDevices decodes every document of the resource. Files that cannot be
// decoded or carry no device name are logged and left out.
func (s *Store) LoadDevices() ([]*v1.Device, error) {
	files, err := s.client.List(s.Resource)
	if err != nil {
		return nil, err
	}

	ret := make([]*v1.Device, 0, len(files))
	for _, file := range files {
		if !strings.EqualFold(filepath.Ext(file.Path), fileExt) {
			klog.V(4).InfoS("Skipped non device file", "file", file.Path)
			continue
		}
		d, err := LoadDevice(file.Path)
		if err != nil {
			klog.ErrorS(err, "Device configuration rejected", "file", file.Path)
			continue
		}
		ret = append(ret, d)
	}
	return ret, nil
}

// LoadDevice decodes a single device document from path.
func LoadDevice(path string) (*v1.Device, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return DecodeDevice(data)
}

func DecodeDevice(data []byte) (*v1.Device, error) {
	d := &v1.Device{}
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(d); err != nil {
		return nil, errors.Wrap(err, "decode device")
	}
	if len(d.GetDeviceName()) == 0 {
		return nil, fmt.Errorf("%w: deviceInfo.deviceName", constant.ErrDeviceNameEmpty)
	}
	return d, nil
}
