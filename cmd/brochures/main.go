// Package main is the entry point of the brochures executable.
package main

import "github.com/prepcart/brochure-crawler/cmd"

func main() {
	cmd.Execute()
}
