// Package main is the entry point for the planledger service.
package main

func main() {
	Execute()
}
