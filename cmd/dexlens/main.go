package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "scan":
		err = cmdScan(os.Args[2:])
	case "classes":
		err = cmdClasses(os.Args[2:])
	case "xrefs":
		err = cmdXrefs(os.Args[2:])
	case "annotations":
		err = cmdAnnotations(os.Args[2:])
	case "graph":
		err = cmdGraph(os.Args[2:])
	case "index":
		err = cmdIndex(os.Args[2:])
	case "query":
		err = cmdQuery(os.Args[2:])
	case "natives":
		err = cmdNatives(os.Args[2:])
	case "signal":
		err = cmdSignal(os.Args[2:])
	case "help", "-h", "--help":
		usage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `dexlens: DEX structure and bytecode analyzer

Usage:
  dexlens scan        --dex <path> | --apk <path> [--out <dir>]   Header, version and table sizes
  dexlens classes     --dex <path> [--out <dir>] [--annotations]  Per-class JSONL with resolved names
  dexlens xrefs       --dex <path> [--out <dir>]                  Per-method references JSONL
  dexlens annotations --dex <path> [--out <dir>] [--cbor]         Annotation and array pool export
  dexlens graph       --dex <path> [--out <dir>] [--match <s>]    Call graph, class graph and CFG DOT
  dexlens index       --dex <path> [--db <path>]                  SQLite cross-reference index
  dexlens query       --db <path> --callers|--callees|--string|--field|--dups
  dexlens natives     --apk <path> [--abi <abi>] [--out <dir>]    Bind native methods to JNI exports
  dexlens signal      --dex <path> [--hops <n>] [--out <dir>]     Flag sensitive strings and API calls

Flags:
  --dex <path>          Path to a .dex file
  --apk <path>          Path to an APK; every classes*.dex is processed
  --config <path>       dexlens.toml (default: search upward from the working directory)
  --strict              Fail on first structural error
  --debug               Debug logging
`)
}
