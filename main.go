/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "themeforge/cmd"

func main() {
	cmd.Execute()
}
