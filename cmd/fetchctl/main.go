package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/edvin/fetchctl/internal/fetch"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}

func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "error: %v\n", err)

	var fe *fetch.Error
	if !errors.As(err, &fe) {
		return
	}
	if fe.Details != "" {
		fmt.Fprintf(w, "details: %s\n", fe.Details)
	}
	if fe.Resolution != "" {
		fmt.Fprintf(w, "resolution: %s\n", fe.Resolution)
	}
}
