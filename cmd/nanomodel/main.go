// Command nanomodel validates documents against YAML schemas and reads or
// writes them through the document model.
// Build with: go build -o bin/nanomodel ./cmd/nanomodel
package main

import (
	"fmt"
	"os"
)

func main() {
	cli := NewCLI(os.Stdout)
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
