package sqlexec

import (
	"errors"

	mssql "github.com/microsoft/go-mssqldb"

	"github.com/melosso/portway/internal/gatewayerr"
)

// vendorMessageByNumber maps SQL Server error numbers to sanitised,
// user-facing messages. Numbers not listed here fall back to a generic
// internal error, per §4.6/§7: vendor text never leaves the process.
var vendorMessageByNumber = map[int32]string{
	2627: "a row with this key already exists",
	2601: "a row with this key already exists",
	547:  "the request violates a foreign key or check constraint",
	515:  "a required field was missing",
	8152: "a value was too long for its column",
}

// sanitise turns a driver error into a *gatewayerr.Error that never leaks
// vendor text, connection details, or SQL. Connection/auth failures become
// a generic 500; recognised constraint violations become 400 with a safe
// message; anything else becomes a generic 500.
func sanitise(err error) error {
	if err == nil {
		return nil
	}
	var mssqlErr mssql.Error
	if errors.As(err, &mssqlErr) {
		if msg, ok := vendorMessageByNumber[mssqlErr.Number]; ok {
			return gatewayerr.New(gatewayerr.KindValidation, msg)
		}
	}
	return gatewayerr.New(gatewayerr.KindInternal, "database operation failed")
}
