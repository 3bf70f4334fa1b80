package main

import "github.com/drgolem/practicetempo/cmd"

func main() {
	cmd.Execute()
}
