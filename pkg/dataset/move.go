package dataset

import "fmt"

// Move relocates the image at srcIndex of bucket src to dstIndex of bucket
// dst and returns the resulting instance. The receiver is never modified.
//
// The image is removed first and then inserted, so a move within one bucket
// is a reorder and the bucket keeps its size. A dstIndex past the end of the
// destination appends. Moving into Golden from another bucket fails with
// ErrGoldenOccupied when Golden already holds an image.
func (in Instance) Move(src Bucket, srcIndex int, dst Bucket, dstIndex int) (Instance, error) {
	if !src.Valid() {
		return in, fmt.Errorf("source: %w: %v", ErrUnknownBucket, src)
	}
	if !dst.Valid() {
		return in, fmt.Errorf("destination: %w: %v", ErrUnknownBucket, dst)
	}
	from := in.buckets[src]
	if srcIndex < 0 || srcIndex >= len(from) {
		return in, fmt.Errorf("source %v[%d] (len %d): %w", src, srcIndex, len(from), ErrIndexOutOfRange)
	}
	if dstIndex < 0 {
		return in, fmt.Errorf("destination %v[%d]: %w", dst, dstIndex, ErrIndexOutOfRange)
	}
	if dst == Golden && src != Golden && len(in.buckets[Golden]) > 0 {
		return in, ErrGoldenOccupied
	}

	item := from[srcIndex]
	out := in

	remaining := make([]Image, 0, len(from)-1)
	remaining = append(remaining, from[:srcIndex]...)
	remaining = append(remaining, from[srcIndex+1:]...)
	out.buckets[src] = remaining

	to := out.buckets[dst]
	if dstIndex > len(to) {
		dstIndex = len(to)
	}
	inserted := make([]Image, 0, len(to)+1)
	inserted = append(inserted, to[:dstIndex]...)
	inserted = append(inserted, item)
	inserted = append(inserted, to[dstIndex:]...)
	out.buckets[dst] = inserted

	return out, nil
}
