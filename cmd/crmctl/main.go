package main

import "github.com/robsonalexmmf/contact-pilot-system-sub002/cli"

func main() {
	cli.Execute()
}
