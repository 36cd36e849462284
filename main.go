package main

import "github.com/typecasto/halfwit/cmd"

func main() {
	cmd.Execute()
}
