// Command pacts runs declarative web test requirements against a live
// browser: plan, discover, execute, heal, classify, and generate a replay
// script.
package main

import "os"

func main() {
	os.Exit(Execute())
}
