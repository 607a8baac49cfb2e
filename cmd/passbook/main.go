package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "passbook: %v\n", err)

		code := exitRuntime
		var xe *ExitError
		if errors.As(err, &xe) {
			code = xe.Code
		}
		os.Exit(code)
	}
}
