package main

import "github.com/florianwechsung/ssc/cmd"

func main() {
	cmd.Execute()
}
