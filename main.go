package main

import "github.com/naka-gawa/llvm-gh/cmd"

func main() {
	cmd.Execute()
}
