package main

import "RapLab/cmd"

func main() {
	cmd.Execute()
}
