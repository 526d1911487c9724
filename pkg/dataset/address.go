package dataset

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidAddress is returned when a drag address cannot be parsed.
var ErrInvalidAddress = errors.New("invalid bucket address")

// Split is the Train/Val half of a bucket address.
type Split string

// Known splits.
const (
	Train Split = "train"
	Val   Split = "val"
)

// Kind is the category half of a bucket address.
type Kind string

// Known kinds. Golden and Delete only exist under the Train split.
const (
	KindPass   Kind = "PASS"
	KindNG     Kind = "NG"
	KindGolden Kind = "GOLDEN"
	KindDelete Kind = "DELETE"
)

// Address is the structured form of a drag-and-drop container identifier
// such as "train_PASS" or "val_NG".
type Address struct {
	Split Split
	Kind  Kind
}

// ParseAddress validates and parses a composite "<split>_<KIND>" identifier.
// Both halves are matched case-insensitively.
func ParseAddress(s string) (Address, error) {
	splitPart, kindPart, ok := strings.Cut(strings.TrimSpace(s), "_")
	if !ok || splitPart == "" || kindPart == "" {
		return Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	addr := Address{
		Split: Split(strings.ToLower(splitPart)),
		Kind:  Kind(strings.ToUpper(kindPart)),
	}
	if _, err := addr.bucket(); err != nil {
		return Address{}, fmt.Errorf("%w: %q", err, s)
	}
	return addr, nil
}

// String returns the composite identifier, e.g. "train_GOLDEN".
func (a Address) String() string {
	return string(a.Split) + "_" + string(a.Kind)
}

// Bucket maps the address onto one of the six buckets.
func (a Address) Bucket() (Bucket, error) {
	b, err := a.bucket()
	if err != nil {
		return 0, fmt.Errorf("%w: %q", err, a.String())
	}
	return b, nil
}

func (a Address) bucket() (Bucket, error) {
	switch a.Split {
	case Train:
		switch a.Kind {
		case KindPass:
			return TrainPass, nil
		case KindNG:
			return TrainNG, nil
		case KindGolden:
			return Golden, nil
		case KindDelete:
			return Delete, nil
		}
	case Val:
		switch a.Kind {
		case KindPass:
			return ValPass, nil
		case KindNG:
			return ValNG, nil
		}
	}
	return 0, ErrInvalidAddress
}

// AddressOf returns the drag address of bucket b.
func AddressOf(b Bucket) Address {
	switch b {
	case TrainPass:
		return Address{Split: Train, Kind: KindPass}
	case TrainNG:
		return Address{Split: Train, Kind: KindNG}
	case ValPass:
		return Address{Split: Val, Kind: KindPass}
	case ValNG:
		return Address{Split: Val, Kind: KindNG}
	case Golden:
		return Address{Split: Train, Kind: KindGolden}
	case Delete:
		return Address{Split: Train, Kind: KindDelete}
	}
	return Address{}
}

// Location is one end of a drag gesture: a container identifier plus the
// positional index inside it.
type Location struct {
	DroppableID string `json:"droppableId"`
	Index       int    `json:"index"`
}

// DragEvent is what the drag-and-drop layer emits when a gesture ends. A nil
// Destination means the item was dropped outside any bucket.
type DragEvent struct {
	Source      Location  `json:"source"`
	Destination *Location `json:"destination,omitempty"`
}

// ResolvedDrag is a DragEvent whose addresses have been validated.
type ResolvedDrag struct {
	Source      Bucket
	SourceIndex int
	Dest        Bucket
	DestIndex   int
}

// Resolve validates both addresses of the event. ok is false when the event
// has no destination, which callers treat as a no-op.
func (e DragEvent) Resolve() (r ResolvedDrag, ok bool, err error) {
	if e.Destination == nil {
		return ResolvedDrag{}, false, nil
	}
	src, err := ParseAddress(e.Source.DroppableID)
	if err != nil {
		return ResolvedDrag{}, false, fmt.Errorf("source: %w", err)
	}
	dst, err := ParseAddress(e.Destination.DroppableID)
	if err != nil {
		return ResolvedDrag{}, false, fmt.Errorf("destination: %w", err)
	}
	srcBucket, _ := src.Bucket()
	dstBucket, _ := dst.Bucket()
	return ResolvedDrag{
		Source:      srcBucket,
		SourceIndex: e.Source.Index,
		Dest:        dstBucket,
		DestIndex:   e.Destination.Index,
	}, true, nil
}
