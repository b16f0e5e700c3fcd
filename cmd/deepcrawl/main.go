package main

import (
	cmd "github.com/rohmanhakim/deepcrawl/internal/cli"
)

func main() {
	cmd.Execute()
}
