package main

import "github.com/portalbox/portalboxd/cmd/portalctl/cmd"

func main() {
	cmd.Execute()
}
