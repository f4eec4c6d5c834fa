package main

import "github.com/hautlys/cargo-save/cmd"

func main() {
	cmd.Execute()
}
