package main

import "github.com/nfrund/hostscript/cmd/hostscript/cmd"

func main() {
	cmd.Execute()
}
