package main

import "github.com/Unknown-6666/warden/cmd"

func main() {
	cmd.Execute()
}
