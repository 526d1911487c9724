// Package dataset contains the classification data model for one inspection
// export: image references, the six fixed buckets of a dataset instance, and
// the ordered component / light-source hierarchy that holds them. It also
// implements the two in-place edits an operator can make to an instance: a
// drag-initiated move between buckets and a ratio-based Train/Val rebalance.
//
// All mutating operations follow value semantics. An Instance is never
// modified in place; Move and AdjustRatio return a new Instance whose bucket
// slices are freshly allocated, so previously returned versions (and the
// snapshot an instance was materialized from) are never aliased.
package dataset

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	// ErrNotFound is returned when a component or light source is not present.
	ErrNotFound = errors.New("not found")
	// ErrGoldenOccupied is returned when an image is moved into a Golden bucket
	// that already holds its single reference image.
	ErrGoldenOccupied = errors.New("golden can be just one, remove the original one first")
	// ErrIndexOutOfRange is returned for an invalid source or destination index.
	ErrIndexOutOfRange = errors.New("index out of range")
	// ErrUnknownBucket is returned for a bucket value outside the six known kinds.
	ErrUnknownBucket = errors.New("unknown bucket")
	// ErrInvalidPercent is returned when a ratio percentage is outside [0,100].
	ErrInvalidPercent = errors.New("percentage must be within [0,100]")
)

// Image is an opaque image reference plus display metadata.
type Image struct {
	UUID string `json:"image_uuid"`
	Name string `json:"image_name,omitempty"`
	Path string `json:"image_path,omitempty"`
}

// Bucket identifies one of the six classification buckets of an Instance.
type Bucket int

// The six bucket kinds, in persistence order.
const (
	TrainPass Bucket = iota
	TrainNG
	ValPass
	ValNG
	Golden
	Delete

	bucketCount
)

var bucketNames = [bucketCount]string{
	TrainPass: "TrainPass",
	TrainNG:   "TrainNG",
	ValPass:   "ValPass",
	ValNG:     "ValNG",
	Golden:    "Golden",
	Delete:    "Delete",
}

// String returns the bucket name (e.g. "TrainPass").
func (b Bucket) String() string {
	if !b.Valid() {
		return fmt.Sprintf("Bucket(%d)", int(b))
	}
	return bucketNames[b]
}

// Valid reports whether b is one of the six known buckets.
func (b Bucket) Valid() bool {
	return b >= TrainPass && b < bucketCount
}

// AllBuckets returns the six buckets in persistence order.
func AllBuckets() []Bucket {
	return []Bucket{TrainPass, TrainNG, ValPass, ValNG, Golden, Delete}
}

// Instance is the six-bucket container for one (component, light-source)
// classification instance. The zero value is an empty, not-ready instance.
type Instance struct {
	// Ready mirrors the backend completeness flag for this light source.
	Ready bool

	buckets [bucketCount][]Image
}

// NewInstance returns an empty instance with the given readiness flag.
func NewInstance(ready bool) Instance {
	return Instance{Ready: ready}
}

// WithBucket returns a copy of the instance whose bucket b holds exactly imgs.
// It panics on an unknown bucket; it is meant for building fixtures and
// decoded values, not for operator edits.
func (in Instance) WithBucket(b Bucket, imgs ...Image) Instance {
	if !b.Valid() {
		panic(fmt.Sprintf("dataset: %v: %v", ErrUnknownBucket, b))
	}
	in.buckets[b] = slices.Clone(imgs)
	return in
}

// Images returns a copy of the images held in bucket b.
func (in Instance) Images(b Bucket) []Image {
	if !b.Valid() {
		return nil
	}
	return slices.Clone(in.buckets[b])
}

// IDs returns the image identifiers of bucket b in bucket order.
func (in Instance) IDs(b Bucket) []string {
	if !b.Valid() {
		return nil
	}
	ids := make([]string, 0, len(in.buckets[b]))
	for _, img := range in.buckets[b] {
		ids = append(ids, img.UUID)
	}
	return ids
}

// Len returns the number of images in bucket b.
func (in Instance) Len(b Bucket) int {
	if !b.Valid() {
		return 0
	}
	return len(in.buckets[b])
}

// Total returns the number of images across all six buckets.
func (in Instance) Total() int {
	n := 0
	for _, imgs := range in.buckets {
		n += len(imgs)
	}
	return n
}

// AllImages returns every image of the instance, bucket by bucket.
func (in Instance) AllImages() []Image {
	out := make([]Image, 0, in.Total())
	for _, imgs := range in.buckets {
		out = append(out, imgs...)
	}
	return out
}

// Equal reports whether two instances hold the same images in the same
// buckets and order, with the same readiness flag.
func (in Instance) Equal(other Instance) bool {
	if in.Ready != other.Ready {
		return false
	}
	for b := range in.buckets {
		if !slices.Equal(in.buckets[b], other.buckets[b]) {
			return false
		}
	}
	return true
}

// Warnings lists the completeness hints shown next to the buckets, followed
// by one entry per image id that appears in more than one bucket.
func (in Instance) Warnings() []string {
	var out []string
	if in.Len(TrainPass)+in.Len(TrainNG) < 2 {
		out = append(out, "Train: pass + ng need at least two")
	}
	if in.Len(ValPass)+in.Len(ValNG) < 1 {
		out = append(out, "Val: pass + ng need at least one")
	}
	switch g := in.Len(Golden); {
	case g < 1:
		out = append(out, "Golden: need one")
	case g > 1:
		out = append(out, fmt.Sprintf("Golden: holds %d images, only one is allowed", g))
	}
	for _, d := range in.duplicates() {
		names := make([]string, len(d.buckets))
		for i, b := range d.buckets {
			names[i] = b.String()
		}
		out = append(out, fmt.Sprintf("Image %s: listed in %s", d.id, strings.Join(names, " and ")))
	}
	return out
}

type duplicate struct {
	id      string
	buckets []Bucket
}

// duplicates returns the image ids held by more than one bucket slot, in
// first-seen order.
func (in Instance) duplicates() []duplicate {
	seen := make(map[string]int, in.Total())
	var out []duplicate
	for b, imgs := range in.buckets {
		for _, img := range imgs {
			idx, ok := seen[img.UUID]
			if !ok {
				out = append(out, duplicate{id: img.UUID, buckets: []Bucket{Bucket(b)}})
				seen[img.UUID] = len(out) - 1
				continue
			}
			out[idx].buckets = append(out[idx].buckets, Bucket(b))
		}
	}
	return slices.DeleteFunc(out, func(d duplicate) bool { return len(d.buckets) < 2 })
}
