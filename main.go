// ./main.go
package main

import (
	"github.com/xkilldash9x/marionette-cli/cmd"
)

// main is the entrypoint for the marionette CLI.
func main() {
	cmd.Execute()
}
