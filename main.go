package main

import "github.com/vharsh/s3par/cmd"

func main() {
	cmd.Execute()
}
