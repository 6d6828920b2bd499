// Package all links every table store backend into the binary.
package all

import (
	_ "sleepgen/internal/blob/fs"
	_ "sleepgen/internal/blob/s3"
)
