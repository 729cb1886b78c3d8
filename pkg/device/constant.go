package device

import (
	"errors"

	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/util/sets"
)

var patchTypes = sets.NewString(string(types.JSONPatchType), string(types.MergePatchType))

const (
	maxJSONPatchOperations = 1000

	ActionStart = "start"
	ActionStop  = "stop"
)

var (
	ErrVersionMismatch = errors.New("device version mismatch")
	ErrUnknownAction   = errors.New("unknown device action")
)
