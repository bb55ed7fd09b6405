// Command archflow imports architecture models, serves the live viewer and
// plays scenario timelines in the terminal or over MCP.
package main

import (
	"fmt"
	"os"
)

const usage = `Usage: archflow <command> [flags]

Commands:
  serve     run the web viewer
  render    export a diagram as svg, png, mermaid, ascii or dot
  import    store model files in the catalogue
  play      play a diagram's scenarios in the terminal
  mcp       serve MCP tools over stdio
  install   write settings and start (or reload) the server
  version   print the version
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "serve":
		runServe(args)
	case "render":
		runRender(args)
	case "import":
		runImport(args)
	case "play":
		runPlay(args)
	case "mcp":
		runMCP(args)
	case "install":
		runInstall(args)
	case "version", "--version", "-v":
		printVersion()
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
}
