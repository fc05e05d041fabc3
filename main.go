package main

import "hostbridge/cmd"

func main() {
	cmd.Execute()
}
