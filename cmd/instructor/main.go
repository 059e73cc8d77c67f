// Command instructor extracts structured JSON from a prompt with an LLM,
// using a model described in a JSON descriptor file.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newApp().rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
