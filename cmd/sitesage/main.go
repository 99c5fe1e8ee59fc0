package main

import "github.com/sitesage/sitesage/internal/cli"

func main() {
	cli.Execute()
}
