package turn

import "errors"

// ErrEmptyMessage rejects a turn whose text is empty or whitespace.
var ErrEmptyMessage = errors.New("message text is empty")
