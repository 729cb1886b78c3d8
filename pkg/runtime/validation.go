package runtime

import (
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/util/validation/field"
	"mesbridge/pkg/runtime/constant"
)

type ValidateNameFunc func(name string) error

// ValidateDeviceName rejects names that cannot be used as a configuration file name.
func ValidateDeviceName(name string) error {
	if strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("must not contain path separators")
	}
	if len(name) > 64 {
		return fmt.Errorf("must be no more than 64 characters")
	}
	return nil
}

func ValidateObjectMeta(path *field.Path, name string, nameFn ValidateNameFunc) field.ErrorList {
	var allErrs field.ErrorList
	if len(name) == 0 {
		allErrs = append(allErrs, field.Required(path, ""))
	} else if err := nameFn(name); err != nil {
		allErrs = append(allErrs, field.Invalid(path, name, err.Error()))
	}
	return allErrs
}

// ValidateDevice checks a device against the protocol the process runs.
func ValidateDevice(d *Device, protocol Protocol) field.ErrorList {
	info := field.NewPath("deviceInfo")
	allErrs := ValidateObjectMeta(info.Child("deviceName"), d.Info.DeviceName, ValidateDeviceName)

	if _, ok := ManufactureToString[d.Info.Manufacture]; !ok {
		allErrs = append(allErrs, field.NotSupported(info.Child("manufacture"), d.Info.Manufacture, nil))
	} else if d.Info.Manufacture.Protocol() != protocol {
		allErrs = append(allErrs, field.Invalid(info.Child("manufacture"), d.Info.Manufacture.String(),
			fmt.Sprintf("not a %s manufacturer", protocol)))
	}

	tags := field.NewPath("tags")
	for i, tag := range d.Tags {
		if len(tag.ID) == 0 {
			allErrs = append(allErrs, field.Required(tags.Index(i).Child("id"), ""))
		}
		if protocol == ProtocolSecsGem && !constant.IsSupportedDataType(tag.DataType) {
			allErrs = append(allErrs, field.NotSupported(tags.Index(i).Child("dataType"), tag.DataType, constant.DataTypeGroups))
		}
	}

	if protocol == ProtocolOpcUa {
		signals := field.NewPath("signals")
		if len(d.Signals) == 0 {
			allErrs = append(allErrs, field.Required(signals, "at least one signal tag"))
		}
		for i, tag := range d.Signals {
			if len(tag.ID) == 0 {
				allErrs = append(allErrs, field.Required(signals.Index(i).Child("id"), ""))
			}
		}
	}
	return allErrs
}
