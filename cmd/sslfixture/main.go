package main

import "github.com/jmcleod/sslfixture/cmd/sslfixture/cmd"

func main() {
	cmd.Execute()
}
