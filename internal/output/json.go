package output

import (
	"encoding/json"
	"fmt"
	"io"
)

// WriteJSON writes strict JSON output for CLI commands.
func WriteJSON(w io.Writer, v any, pretty bool) error {
	var b []byte
	var err error
	if pretty {
		b, err = json.MarshalIndent(v, "", "  ")
	} else {
		b, err = json.Marshal(v)
	}
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(w, string(b))
	return err
}
