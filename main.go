package main

import "github.com/solvex/mev-shield/cmd"

func main() {
	cmd.Execute()
}
