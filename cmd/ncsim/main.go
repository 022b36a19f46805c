// ncsim simulates network coded links, and runs them over UDP.
package main

import "github.com/overlaymesh/rlnc/internal/cli"

func main() {
	cli.Execute()
}
