package main

import "github.com/juristools/stjsearch/cmd"

func main() {
	cmd.Execute()
}
