// Command cryolab operates a cryogenic RF measurement setup: HEMT bias,
// cryogenic switch, network analyzer power and S-parameter capture.
package main

func main() {
	Execute()
}
