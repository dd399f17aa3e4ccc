package main

import "github.com/oshokin/packwiz-deploy/cmd/packwiz-deploy/cmd"

func main() {
	cmd.Execute()
}
