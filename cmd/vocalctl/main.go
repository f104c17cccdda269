package main

import "vocald/internal/ctl"

var version = "dev"

func main() {
	ctl.Execute(version)
}
