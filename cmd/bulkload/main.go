// Command bulkload streams JSONL exports of typed record models into a
// relational database through each backend's bulk path.
package main

import (
	"fmt"
	"os"

	// register all backends with the storage factory.
	_ "bulkload/internal/storage/all"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
