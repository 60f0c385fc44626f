//go:build !gcp

package rawstore

import (
	"context"
	"fmt"
)

func openGCS(ctx context.Context, bucket, prefix string) (Store, error) {
	return nil, fmt.Errorf("GCS raw store is not enabled in this build (use -tags gcp)")
}
