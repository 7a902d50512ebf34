package schema

import "fmt"

// SchemaError reports a referenced table or column that does not exist, or a
// table whose primary key cannot be determined. It is fatal to the enclosing
// export, import or canonicalization call.
type SchemaError struct {
	Table   string
	Column  string
	Message string
	Err     error
}

func (e *SchemaError) Error() string {
	target := e.Table
	if e.Column != "" {
		target += "." + e.Column
	}
	msg := fmt.Sprintf("schema error on %s: %s", target, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}
