package main

import "github.com/blackmouse572/skin-doctor/cmd"

func main() {
	cmd.Execute()
}
