// Command witnessverify is a standalone tool for verifying a signed
// document envelope without any other part of the toolchain running.
//
// Usage:
//
//	witnessverify [flags] <envelope.json>
//
// Examples:
//
//	# Basic verification
//	witnessverify document.json
//
//	# JSON output, for scripting
//	witnessverify -format json document.json
//
//	# Skip the authorship analyzer
//	witnessverify -no-analyze document.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ciphernom/bitquill/internal/analyzer"
	"github.com/ciphernom/bitquill/internal/envelope"
	"github.com/ciphernom/bitquill/internal/schemavalidation"
	"github.com/ciphernom/bitquill/internal/vdf"
	"github.com/ciphernom/bitquill/internal/verifier"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	formatStr := flag.String("format", "text", "output format: text, json")
	schemaPath := flag.String("schema", "", "path to the envelope JSON Schema (skip schema validation if empty)")
	modulusHex := flag.String("modulus", "", "override the RSA VDF modulus (hex); empty uses the built-in default")
	noAnalyze := flag.Bool("no-analyze", false, "skip the authorship analyzer")
	versionFlag := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("witnessverify %s (commit %s, built %s)\n", version, commit, buildTime)
		return
	}

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: witnessverify [flags] <envelope.json>")
		os.Exit(2)
	}
	path := flag.Arg(0)

	raw, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "witnessverify: reading %s: %v\n", path, err)
		os.Exit(1)
	}

	if *schemaPath != "" {
		v, err := schemavalidation.Compile(*schemaPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "witnessverify: compiling schema: %v\n", err)
			os.Exit(1)
		}
		if err := v.ValidateBytes(raw); err != nil {
			fmt.Fprintf(os.Stderr, "witnessverify: %s failed schema validation: %v\n", filepath.Base(path), err)
			os.Exit(1)
		}
	}

	var env envelope.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		fmt.Fprintf(os.Stderr, "witnessverify: parsing envelope: %v\n", err)
		os.Exit(1)
	}

	computer := vdf.NewDefault()
	if *modulusHex != "" {
		c, err := vdf.New(*modulusHex)
		if err != nil {
			fmt.Fprintf(os.Stderr, "witnessverify: invalid modulus: %v\n", err)
			os.Exit(1)
		}
		computer = c
	}

	var progress verifier.ProgressFunc
	if *formatStr != "json" {
		progress = func(percent int, message string) {
			fmt.Fprintf(os.Stderr, "\r[%3d%%] %s", percent, message)
		}
	}

	result := verifier.Verify(&env, computer, progress)
	if progress != nil {
		fmt.Fprintln(os.Stderr)
	}

	var score *analyzer.Score
	if !*noAnalyze {
		s := analyzer.Analyze(env.ProofChain)
		score = &s
	}

	switch *formatStr {
	case "json":
		printJSON(result, score)
	default:
		printText(path, result, score)
	}

	if !result.Valid {
		os.Exit(1)
	}
}

func printText(path string, result verifier.Result, score *analyzer.Score) {
	fmt.Printf("%s\n", path)
	fmt.Printf("  valid:           %v\n", result.Valid)
	fmt.Printf("  epochs verified: %d / %d\n", result.VerifiedEpochs, result.TotalEpochs)
	fmt.Printf("  signature valid: %v\n", result.SignatureValid)
	if len(result.Errors) > 0 {
		fmt.Println("  errors:")
		for _, e := range result.Errors {
			fmt.Printf("    - %s\n", e)
		}
	}
	if score != nil {
		fmt.Printf("  human score:     %.3f", score.HumanScore)
		if score.Reason != "" {
			fmt.Printf(" (%s)", score.Reason)
		}
		fmt.Println()
	}
}

func printJSON(result verifier.Result, score *analyzer.Score) {
	out := struct {
		Result   verifier.Result `json:"result"`
		Analysis *analyzer.Score `json:"analysis,omitempty"`
	}{Result: result, Analysis: score}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}
