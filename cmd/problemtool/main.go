// problemtool is the offline curation companion of judged: it installs,
// removes and packages problem directories without going through the HTTP
// surface.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/YanagiOrigami/LightCPVerifier/internal/judge/problem"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	root := flag.String("root", "var/judge/problems", "problems root directory")
	packages := flag.String("packages", "var/judge/data/packages", "package output directory")
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		usage()
		os.Exit(2)
	}

	loader := problem.NewLoader(*root)
	var err error
	switch args[0] {
	case "add":
		if len(args) != 3 {
			usage()
			os.Exit(2)
		}
		err = loader.AddProblem(args[1], args[2])
	case "delete":
		if len(args) != 2 {
			usage()
			os.Exit(2)
		}
		err = loader.DeleteProblem(args[1])
	case "export":
		if len(args) != 2 {
			usage()
			os.Exit(2)
		}
		var path string
		path, err = loader.ExportPackage(args[1], *packages)
		if err == nil {
			fmt.Println(filepath.Clean(path))
		}
	case "import":
		if len(args) != 3 {
			usage()
			os.Exit(2)
		}
		err = loader.ImportPackage(args[1], args[2])
	case "list":
		var infos []problem.Info
		infos, err = loader.ListProblems(false)
		for _, info := range infos {
			fmt.Println(info.PID)
		}
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s failed: %v\n", args[0], err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: problemtool [-root DIR] [-packages DIR] <command>

commands:
  add <pid> <src-dir>        install a problem directory
  delete <pid>               remove a problem
  export <pid>               archive a problem to <packages>/<pid>.tar.zst
  import <pid> <archive>     install a problem from an archive
  list                       list installed problems`)
}
