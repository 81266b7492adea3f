package main

import "github.com/frahmantamala/course-checkout/cmd"

func main() {
	cmd.Execute()
}
