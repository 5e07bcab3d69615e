package main

import "soundwaves/cmd"

func main() {
	cmd.Execute()
}
