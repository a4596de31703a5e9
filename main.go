package main

import "github.com/pkichain/pkichain/cmd"

func main() {
	cmd.Execute()
}
