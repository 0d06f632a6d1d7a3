/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/HSPiira/timeline-sub000/cmd"

func main() {
	cmd.Execute()
}
