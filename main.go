package main

import "github.com/rnrlcrm/cotton-erp-rnrl-sub001/cmd"

func main() {
	cmd.Execute()
}
