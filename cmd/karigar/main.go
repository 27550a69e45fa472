// Command karigar serves the product-content creation page and relays
// submissions to the generation backend.
package main

import (
	"fmt"
	"os"

	"github.com/livetemplate/karigar/cmd/karigar/commands"
)

const version = "0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "serve":
		err = commands.ServeCommand(args)
	case "validate":
		err = commands.ValidateCommand(args)
	case "version":
		fmt.Printf("karigar version %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("karigar - Product stories, captions, and photos for artisans")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  karigar serve [directory]     Start the web server")
	fmt.Println("  karigar validate [directory]  Check configuration and templates")
	fmt.Println("  karigar version               Show version")
	fmt.Println("  karigar help                  Show this help")
	fmt.Println()
	fmt.Println("Serve flags:")
	fmt.Println("  -c, --config <file>   Config file (default: karigar.yaml in directory)")
	fmt.Println("  -p, --port <port>     Listen port")
	fmt.Println("      --host <host>     Listen host")
	fmt.Println("  -b, --backend <url>   Generation backend base URL")
	fmt.Println("  -w, --watch           Reload the page template on change")
	fmt.Println("  -d, --debug           Verbose logging")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  KARIGAR_BACKEND_URL   Overrides backend.url")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  karigar serve                                  # Serve with ./karigar.yaml")
	fmt.Println("  karigar serve --backend http://localhost:5000  # Point at a local backend")
	fmt.Println("  karigar validate ./deploy                      # Validate ./deploy/karigar.yaml")
}
