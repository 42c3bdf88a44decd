package main

import "github.com/KarpelesLab/smartmedia/cmd/smartmedia/commands"

func main() {
	commands.Execute()
}
