package main

import "github.com/Glitchy-Sheep/wallhaven-downloader/cmd"

func main() {
	cmd.Execute()
}
