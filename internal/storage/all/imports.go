// Package all wires all built-in storage backends into the storage registry.
//
// This package exists purely for side effects: importing it (even as a blank
// import) runs the init functions of each backend, which register their
// Openers with the storage package. Afterwards the following kinds are
// available to storage.Open:
//
//   - "postgres" (csvtopg/internal/storage/postgres)
//   - "mssql"    (csvtopg/internal/storage/mssql)
//   - "mysql"    (csvtopg/internal/storage/mysql)
//   - "sqlite"   (csvtopg/internal/storage/sqlite)
//
// A binary that needs only a subset of backends can blank-import the
// backend packages it wants instead.
package all

import (
	_ "csvtopg/internal/storage/mssql"
	_ "csvtopg/internal/storage/mysql"
	_ "csvtopg/internal/storage/postgres"
	_ "csvtopg/internal/storage/sqlite"
)
