// Package main is the entry point for the stablecoin bootstrap CLI.
package main

func main() {
	Execute()
}
