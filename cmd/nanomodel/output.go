package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arthur-debert/nanomodel/nanomodel"
	"github.com/arthur-debert/nanomodel/types"
)

// OutputFormatter renders command results as JSON or YAML.
type OutputFormatter struct {
	format string
}

func NewOutputFormatter(format string) *OutputFormatter {
	return &OutputFormatter{format: format}
}

// Format renders data. Identities become hex strings and times RFC 3339
// so both formats read the same.
func (of *OutputFormatter) Format(data any) (string, error) {
	data = display(data)
	switch of.format {
	case "yaml":
		out, err := yaml.Marshal(data)
		if err != nil {
			return "", err
		}
		return string(out), nil
	default:
		out, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return "", err
		}
		return string(out) + "\n", nil
	}
}

func (cli *CLI) output(w io.Writer, data any) error {
	text, err := NewOutputFormatter(cli.viperInst.GetString("format")).Format(data)
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	_, err = io.WriteString(w, text)
	return err
}

func documents(instances []*nanomodel.Instance) []any {
	out := make([]any, len(instances))
	for i, inst := range instances {
		out[i] = map[string]any(inst.Document())
	}
	return out
}

func display(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = display(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = display(val)
		}
		return out
	case types.ID:
		return x.Hex()
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case []byte:
		return base64.StdEncoding.EncodeToString(x)
	}
	return v
}
