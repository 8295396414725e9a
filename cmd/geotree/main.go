package main

import "github.com/ssargent/geotree/cmd/geotree/cmd"

func main() {
	cmd.Execute()
}
