package main

import "github.com/NewbieTed/Quip-Bot-sub003/cmd/toolsyncd/cmd"

func main() {
	cmd.Execute()
}
