package runtime

import (
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
	"k8s.io/klog/v2"
)

type lessDeviceFunc func(d1, d2 *Device) bool

type deviceSorter struct {
	ds        []*Device
	lessFuncs []lessDeviceFunc
}

func ByDevice(less ...lessDeviceFunc) *deviceSorter {
	return &deviceSorter{
		lessFuncs: less,
	}
}

func (ms *deviceSorter) Sort(ds []*Device) {
	ms.ds = ds
	sort.Sort(ms)
}

func (ms *deviceSorter) Len() int {
	return len(ms.ds)
}

func (ms *deviceSorter) Swap(i, j int) {
	ms.ds[i], ms.ds[j] = ms.ds[j], ms.ds[i]
}

func (ms *deviceSorter) Less(i, j int) bool {
	return ms.less(ms.ds[i], ms.ds[j])
}

func (ms *deviceSorter) less(p, q *Device) bool {
	var k int
	for k = 0; k < len(ms.lessFuncs)-1; k++ {
		less := ms.lessFuncs[k]
		switch {
		case less(p, q):
			return true
		case less(q, p):
			return false
		}
	}
	return ms.lessFuncs[k](p, q)
}

func ByName(d1, d2 *Device) bool { return d1.GetName() < d2.GetName() }

type NameFilterFunc struct {
	Eq         string
	In         []string
	Contains   string
	StartsWith string
	EndsWith   string
}

type DeviceFilter struct {
	Name        interface{}
	Manufacture string
	IP          string
	Workshop    string
}

type Predicate func(d *Device) bool

// ParseDeviceFilter turns a decoded ?filter= query into predicates, all of which must hold.
func ParseDeviceFilter(filter *DeviceFilter) []Predicate {
	predicates := make([]Predicate, 0)

	if len(filter.Manufacture) > 0 {
		predicates = append(predicates, func(d *Device) bool {
			return d.Info.Manufacture.String() == filter.Manufacture
		})
	}
	if len(filter.IP) > 0 {
		predicates = append(predicates, func(d *Device) bool {
			return d.Info.IP == filter.IP
		})
	}
	if len(filter.Workshop) > 0 {
		predicates = append(predicates, func(d *Device) bool {
			return d.Info.Workshop == filter.Workshop
		})
	}

	if filter.Name == nil {
		return predicates
	}
	if name, ok := filter.Name.(string); ok {
		return append(predicates, func(d *Device) bool {
			return name == d.GetName()
		})
	}

	var ff NameFilterFunc
	if err := mapstructure.Decode(filter.Name, &ff); err != nil {
		klog.V(3).InfoS("Failed to parse filter.name", "err", err)
	}
	if len(ff.Eq) > 0 {
		predicates = append(predicates, func(d *Device) bool {
			return ff.Eq == d.GetName()
		})
	}
	if len(ff.In) > 0 {
		predicates = append(predicates, func(d *Device) bool {
			for _, name := range ff.In {
				if name == d.GetName() {
					return true
				}
			}
			return false
		})
	}
	if len(ff.Contains) > 0 {
		predicates = append(predicates, func(d *Device) bool {
			return strings.Contains(d.GetName(), ff.Contains)
		})
	}
	if len(ff.StartsWith) > 0 {
		predicates = append(predicates, func(d *Device) bool {
			return strings.HasPrefix(d.GetName(), strings.TrimSpace(ff.StartsWith))
		})
	}
	if len(ff.EndsWith) > 0 {
		predicates = append(predicates, func(d *Device) bool {
			return strings.HasSuffix(d.GetName(), strings.TrimSpace(ff.EndsWith))
		})
	}
	return predicates
}

// Match reports whether d satisfies every predicate.
func Match(d *Device, predicates []Predicate) bool {
	for _, p := range predicates {
		if !p(d) {
			return false
		}
	}
	return true
}
