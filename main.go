package main

import "story-pipeline/cmd"

func main() {
	cmd.Execute()
}
