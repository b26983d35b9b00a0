package main

import (
	"github.com/syncwavelabs/syncwave/internal/cli"
)

func main() {
	cli.Execute()
}
