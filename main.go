// Package main is the entry point for the jgooze CLI.
package main

import "gooze.dev/pkg/jgooze/cmd"

func main() {
	cmd.Execute()
}
