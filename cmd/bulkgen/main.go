package main

import (
	"github.com/JakeFAU/bulkgen/cmd"
)

func main() {
	cmd.Execute()
}
