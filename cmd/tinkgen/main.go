// Command tinkgen compiles saved recipes into scraper scripts and helps
// find selectors in HTML files.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "tinkgen:", err)
		os.Exit(1)
	}
}
