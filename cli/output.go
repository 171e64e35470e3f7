package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// printer writes command results in the selected output format
type printer struct {
	w      io.Writer
	format string
}

func (o *options) printer(w io.Writer) printer {
	return printer{w: w, format: o.output}
}

// print encodes v. YAML output goes through the JSON encoding first so the
// wire field names and the conditions discriminant are kept.
func (p printer) print(v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}

	if p.format == "yaml" {
		var doc any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("failed to encode output: %w", err)
		}
		enc := yaml.NewEncoder(p.w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to encode output: %w", err)
		}
		return enc.Close()
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	buf.WriteByte('\n')
	_, err = p.w.Write(buf.Bytes())
	return err
}

func (p printer) message(format string, args ...any) {
	fmt.Fprintf(p.w, format+"\n", args...)
}
