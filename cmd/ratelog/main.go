// Command ratelog runs the ratelog demo workload and inspects configuration.
package main

import "github.com/Sentinel-Gate/ratelog/cmd/ratelog/cmd"

func main() {
	cmd.Execute()
}
