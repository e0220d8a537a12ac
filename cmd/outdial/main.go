// outdial runs the agent outdial widget: an HTTP widget server, or a
// single headless outdial from the command line.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
