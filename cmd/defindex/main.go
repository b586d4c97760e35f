package main

import "github.com/mvp-joe/defindex/internal/cli"

func main() {
	cli.Execute()
}
