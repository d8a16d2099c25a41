package main

import "github.com/mappa-gov/portal-iam/cmd/mappaiam/cmd"

func main() {
	cmd.Execute()
}
