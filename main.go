package main

import "github.com/andresmejia3/moodlog/cmd"

func main() {
	cmd.Execute()
}
