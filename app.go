package main

import "github.com/masmgr/harmony-go/cmd"

func main() {
	cmd.Run()
}
