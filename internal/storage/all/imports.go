// Package all registers every storage backend with the storage factory.
// Import it for side effects:
//
//	import _ "bulkload/internal/storage/all"
package all

import (
	_ "bulkload/internal/storage/mssql"
	_ "bulkload/internal/storage/mysql"
	_ "bulkload/internal/storage/postgres"
	_ "bulkload/internal/storage/sqlite"
)
