package main

import "github.com/quartzrender/assetsync/cmd/assetsync/cmd"

func main() {
	cmd.Execute()
}
