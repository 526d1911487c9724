// Package backend provides the client for the panel-dataset REST service that
// stores classification snapshots. It defines the Client interface consumed
// by the editing session and an HTTP implementation of it.
package backend

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/greg-hellings/datasettool/pkg/dataset"
)

// Client defines the operations the editing session needs from the backend.
type Client interface {
	// FetchSnapshot retrieves the full classification snapshot of an export.
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - exportID: Export identifier
	// Returns:
	//   - The snapshot with ExportID and Info populated
	//   - Error if the request or decoding fails
	FetchSnapshot(ctx context.Context, exportID string) (*dataset.Snapshot, error)

	// WriteBucket replaces the membership of one bucket for the export. For
	// the Delete bucket the listed images are marked deleted instead.
	WriteBucket(ctx context.Context, exportID string, bucket dataset.Bucket, imageIDs []string) error

	// TriggerConversion starts the external zip-generation pipeline.
	TriggerConversion(ctx context.Context, projectID, exportID string) error
}

// Config holds configuration for backend clients.
type Config struct {
	// BaseURL is the API root, e.g. "http://10.204.16.52/inmfft/api/v1".
	BaseURL string

	// Token is an optional bearer token sent with every request.
	Token string

	// Timeout bounds a single HTTP request. Zero means no client timeout.
	Timeout time.Duration

	// RandomResult is forwarded as the random_result query flag when fetching
	// a snapshot.
	RandomResult bool
}

// Route describes where a bucket write is sent.
type Route struct {
	Method string
	Path   string
}

const (
	snapshotPath   = "panelDataset"
	conversionPath = "panelDataset/zip"
)

var bucketRoutes = map[dataset.Bucket]Route{
	dataset.TrainPass: {Method: http.MethodPut, Path: "panelDataset/train/pass"},
	dataset.TrainNG:   {Method: http.MethodPut, Path: "panelDataset/train/ng"},
	dataset.ValPass:   {Method: http.MethodPut, Path: "panelDataset/val/pass"},
	dataset.ValNG:     {Method: http.MethodPut, Path: "panelDataset/val/ng"},
	dataset.Golden:    {Method: http.MethodPut, Path: "panelDataset/golden"},
	dataset.Delete:    {Method: http.MethodDelete, Path: "panelDataset/image"},
}

// RouteFor returns the method and path used to persist bucket b.
func RouteFor(b dataset.Bucket) (Route, error) {
	r, ok := bucketRoutes[b]
	if !ok {
		return Route{}, fmt.Errorf("backend: %w: %v", dataset.ErrUnknownBucket, b)
	}
	return r, nil
}

// WriteRequest is the body of every bucket write.
type WriteRequest struct {
	ExportUUID    string   `json:"export_uuid"`
	ImageUUIDList []string `json:"image_uuid_list"`
}

// ConversionRequest is the body of the conversion trigger.
type ConversionRequest struct {
	ProjectUUID string `json:"project_uuid"`
	ExportUUID  string `json:"export_uuid"`
}

// SnapshotResponse is the body returned by the snapshot fetch.
type SnapshotResponse struct {
	Info dataset.PanelInfo `json:"info"`
	Data dataset.Snapshot  `json:"data"`
}
