package blend

import (
	"errors"
	"fmt"
)

var (
	// ErrPointer is returned when a pointer does not fall into any block.
	// It is always fatal: the file is corrupt or crafted.
	ErrPointer = errors.New("pointer resolution failed")
	// ErrTypeMismatch is returned when a block's schema type differs from the
	// type the pointer field declares. It wraps ErrPointer.
	ErrTypeMismatch = fmt.Errorf("%w: type mismatch", ErrPointer)
	// ErrBlock is returned for block headers that do not fit the buffer.
	ErrBlock = errors.New("invalid file block")

	// ErrFieldMissing reports a field absent from the file schema. Its
	// severity depends on the ErrorPolicy of the call site.
	ErrFieldMissing = errors.New("field missing from file schema")
	// ErrFieldMismatch reports a field whose on-disk shape does not match the
	// read, such as a pointer read of an inline field. Policy governed.
	ErrFieldMismatch = errors.New("field shape mismatch")
	// ErrNoConverter reports a schema type without a registered converter.
	// Policy governed.
	ErrNoConverter = errors.New("no converter registered")
)
