// Command recourse computes actionable recourse for linear classifiers.
package main

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	Execute()
}
