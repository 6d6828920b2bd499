// Package all links every database export backend into the binary.
package all

import (
	_ "sleepgen/internal/storage/mssql"
	_ "sleepgen/internal/storage/postgres"
	_ "sleepgen/internal/storage/sqlite"
)
