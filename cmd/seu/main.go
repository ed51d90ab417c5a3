package main

import "github.com/OpenTraceLab/OpenTraceSEU/cmd/seu/cmd"

func main() {
	cmd.Execute()
}
