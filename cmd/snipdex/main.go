package main

import "github.com/mvp-joe/snipdex/internal/cli"

func main() {
	cli.Execute()
}
