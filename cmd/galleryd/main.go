package main

import "github.com/photogrid/gallery/cmd/galleryd/cmd"

func main() {
	cmd.Execute()
}
