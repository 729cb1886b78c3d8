package runtime

import (
	"strconv"
	"time"

	"mesbridge/pkg/utils/randutil"
	"mesbridge/pkg/utils/uuidutil"
)

// ObjectMeta identifies a stored object. Version doubles as the HTTP ETag.
type ObjectMeta struct {
	Name    string    `json:"name"`
	ID      string    `json:"id"`
	Version string    `json:"eTag"`
	ModTime time.Time `json:"modTime"`
}

// NewObjectMeta returns metadata with a fresh ID and version.
func NewObjectMeta(name string) ObjectMeta {
	meta := ObjectMeta{Name: name, ID: uuidutil.UUID()}
	meta.Touch()
	return meta
}

func (meta *ObjectMeta) GetName() string    { return meta.Name }
func (meta *ObjectMeta) GetID() string      { return meta.ID }
func (meta *ObjectMeta) GetVersion() string { return meta.Version }

// Touch records a modification.
func (meta *ObjectMeta) Touch() {
	meta.Version = strconv.FormatInt(randutil.Int63n(), 10)
	meta.ModTime = time.Now()
}
