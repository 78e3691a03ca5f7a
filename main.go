package main

import "github.com/KaramelBytes/retailmind-cli/cmd"

func main() {
	cmd.Execute()
}
