package main

import "github.com/Digital-Shane/episode-matcher/internal/cmd"

func main() {
	cmd.Execute()
}
