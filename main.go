//go:build linux

package main

import (
	"voidctl/cmd"
)

func main() {
	cmd.Execute()
}
