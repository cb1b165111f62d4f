// Package main writes the JSON Schemas of the mozdata command outputs.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Sumatoshi-tech/mozdata/cmd/mozdata/commands"
)

func main() {
	var outputDir string

	flag.StringVar(&outputDir, "o", "docs/schemas", "Output directory for schemas")
	flag.Parse()

	err := run(outputDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "schemagen: %v\n", err)
		os.Exit(1)
	}
}

func run(outputDir string) error {
	err := os.MkdirAll(outputDir, 0o755)
	if err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	for _, name := range commands.OutputNames() {
		s, schemaErr := commands.OutputSchema(name)
		if schemaErr != nil {
			return schemaErr
		}

		data, marshalErr := s.Encode()
		if marshalErr != nil {
			return fmt.Errorf("marshal %s schema: %w", name, marshalErr)
		}

		path := filepath.Join(outputDir, name+".json")

		writeErr := os.WriteFile(path, append(data, '\n'), 0o644)
		if writeErr != nil {
			return fmt.Errorf("write %s: %w", path, writeErr)
		}

		fmt.Printf("Generated schema for %s\n", name)
	}

	return nil
}
