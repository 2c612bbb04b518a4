package main

import (
	"fmt"
	"os"

	"github.com/dhruvv90/xnode-scheduler/internal/app"
)

func main() {
	application, err := app.New()
	if err != nil {
		fmt.Fprintln(os.Stderr, "xnode:", err)
		os.Exit(1)
	}
	if err := application.Run(); err != nil {
		os.Exit(1)
	}
}
