package polyorm

import (
	"database/sql"

	"github.com/polyorm/polyorm/errtranslator"
)

// Dialector opens connections and knows the placeholder and error
// conventions of one storage provider
type Dialector interface {
	Name() string
	Open() (*sql.DB, error)
	// BindVar returns the placeholder of the n-th statement parameter, starting at 1
	BindVar(n int) string
	// Translator classifies constraint rejections; nil disables the mapping
	Translator() errtranslator.ErrTranslator
}
