package evidence

import (
	"path"
	"strings"
)

// Reference identifies one object in a storage container.
type Reference struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

func (r Reference) String() string {
	return r.Bucket + "/" + r.Key
}

// Origin is the natural key for exact re-delivery detection.
func (r Reference) Origin() string {
	return "gs://" + r.Bucket + "/" + strings.TrimPrefix(r.Key, "/")
}

func (r Reference) FileName() string {
	return path.Base(r.Key)
}

// Ext is the lower-cased extension without the dot.
func (r Reference) Ext() string {
	return strings.TrimPrefix(strings.ToLower(path.Ext(r.Key)), ".")
}
