package host

import (
	"context"
	"fmt"
)

// tmpSuffix is appended to the target path while an atomic write is in flight.
const tmpSuffix = ".tmp"

// WriteFileAtomic writes data to "<path>.tmp", flushes it through
// svc.WriteFile, and renames it over path. The target is never left
// truncated: on any failure it keeps its previous contents and the
// temporary file is removed.
func WriteFileAtomic(ctx context.Context, svc Services, path string, data []byte) error {
	tmp := path + tmpSuffix

	if err := svc.WriteFile(ctx, tmp, data); err != nil {
		_ = svc.Remove(ctx, tmp, false)
		return fmt.Errorf("writing temporary file for %s: %w", path, err)
	}
	if err := svc.Rename(ctx, tmp, path); err != nil {
		_ = svc.Remove(ctx, tmp, false)
		return fmt.Errorf("finalizing %s: %w", path, err)
	}
	return nil
}
