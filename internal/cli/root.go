package cli

import "fmt"

func Run(args []string) error {
	if len(args) == 0 {
		printRootUsage()
		return nil
	}

	switch args[0] {
	case "fetch":
		return runFetch(args[1:])
	case "status":
		return runStatus(args[1:])
	case "merge":
		return runMerge(args[1:])
	case "lookup":
		return runLookup(args[1:])
	case "help", "-h", "--help":
		printRootUsage()
		return nil
	default:
		printRootUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printRootUsage() {
	fmt.Println("capset: image-caption dataset tools")
	fmt.Println()
	fmt.Println("Quick Start:")
	fmt.Println("  capset fetch --source captions.tsv --dest dset_pictures --ledger output_gdset.json")
	fmt.Println("  capset status --ledger output_gdset.json --source captions.tsv")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  fetch   download every URL of a caption TSV, resuming from the ledger")
	fmt.Println("  status  show ledger counts and where the next fetch resumes")
	fmt.Println("  merge   merge two MSCOCO caption files, remapping image/annotation ids")
	fmt.Println("  lookup  print an annotation and its image by annotation position")
	fmt.Println()
	fmt.Println("Notes:")
	fmt.Println("  - Use --json on commands for machine-readable output")
	fmt.Println("  - fetch resumes by default; --resume=false restarts and replaces the ledger")
	fmt.Println("  - Interrupting fetch (Ctrl+C) flushes the ledger before exiting")
}
