// witnessctl is the control CLI for the digital observer toolchain: it
// drives the VDF calibration benchmarks, seals a batch of edit deltas
// into a signed document envelope, verifies and scores existing
// envelopes, and archives them in the local SQLite store.
package main

import (
	"crypto/rand"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/ciphernom/bitquill/internal/analyzer"
	"github.com/ciphernom/bitquill/internal/config"
	"github.com/ciphernom/bitquill/internal/delta"
	"github.com/ciphernom/bitquill/internal/envelope"
	"github.com/ciphernom/bitquill/internal/epoch"
	"github.com/ciphernom/bitquill/internal/keystore"
	"github.com/ciphernom/bitquill/internal/logging"
	"github.com/ciphernom/bitquill/internal/session"
	"github.com/ciphernom/bitquill/internal/store"
	"github.com/ciphernom/bitquill/internal/vdf"
	"github.com/ciphernom/bitquill/internal/verifier"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
	Commit    = "unknown"
)

var (
	configPath  = flag.String("config", "", "path to config file")
	noColor     = flag.Bool("no-color", false, "disable colored output")
	showVersion = flag.Bool("version", false, "show version information")
	quiet       = flag.Bool("q", false, "suppress banner")
)

type colors struct {
	Reset, Bold, Dim, Red, Green, Yellow, Cyan string
}

var c colors

func initColors() {
	if *noColor || os.Getenv("NO_COLOR") != "" || !isTerminal() {
		c = colors{}
		return
	}
	c = colors{
		Reset:  "\033[0m",
		Bold:   "\033[1m",
		Dim:    "\033[2m",
		Red:    "\033[31m",
		Green:  "\033[32m",
		Yellow: "\033[33m",
		Cyan:   "\033[36m",
	}
}

func isTerminal() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func main() {
	flag.Parse()
	initColors()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	if flag.NArg() < 1 {
		if !*quiet {
			printBanner()
		}
		usage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		printError(fmt.Sprintf("loading config: %v", err))
		os.Exit(1)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		printError(fmt.Sprintf("preparing config directories: %v", err))
		os.Exit(1)
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logging.LevelInfo
	}
	logCfg := logging.DefaultConfig()
	logCfg.Level = level
	logCfg.Component = "witnessctl"
	if cfg.LogPath != "" {
		logCfg.Output = "file"
		logCfg.FilePath = cfg.LogPath
	}
	logger, err := logging.New(logCfg)
	if err == nil {
		logging.SetDefault(logger)
	}

	cmd := flag.Arg(0)
	args := flag.Args()[1:]

	switch cmd {
	case "keygen":
		cmdKeygen(cfg, args)
	case "calibrate":
		cmdCalibrate(cfg, args)
	case "benchmark":
		cmdBenchmark(cfg, args)
	case "seal":
		cmdSeal(cfg, args)
	case "sign":
		cmdSign(cfg, args)
	case "verify":
		cmdVerify(cfg, args)
	case "analyze":
		cmdAnalyze(args)
	case "save":
		cmdSave(cfg, args)
	case "load":
		cmdLoad(cfg, args)
	case "history":
		cmdHistory(cfg, args)
	case "keystore-keygen":
		cmdKeystoreKeygen(args)
	case "encrypt":
		cmdEncrypt(args)
	case "decrypt":
		cmdDecrypt(args)
	case "help":
		printBanner()
		usage()
	case "version":
		printVersion()
	default:
		printError(fmt.Sprintf("unknown command: %s", cmd))
		usage()
		os.Exit(1)
	}
}

func printError(msg string) {
	fmt.Fprintf(os.Stderr, "%s%sERROR%s %s\n", c.Bold, c.Red, c.Reset, msg)
}

func printBanner() {
	fmt.Fprintf(os.Stderr, "%switnessctl%s — the digital observer control CLI\n\n", c.Bold+c.Cyan, c.Reset)
}

func printVersion() {
	fmt.Printf("%switnessctl%s %s%s%s\n", c.Bold, c.Reset, c.Cyan, Version, c.Reset)
	fmt.Printf("  %sBuild%s     %s\n", c.Dim, c.Reset, BuildTime)
	fmt.Printf("  %sCommit%s    %s\n", c.Dim, c.Reset, Commit)
	fmt.Printf("  %sPlatform%s  %s/%s\n", c.Dim, c.Reset, runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  %sGo%s        %s\n", c.Dim, c.Reset, runtime.Version())
}

func usage() {
	fmt.Fprintf(os.Stderr, `%sUSAGE%s
    witnessctl [options] <command> [arguments]

%sCOMMANDS%s
    %skeygen%s    <path>                    generate and save an ECDSA P-384 signing key
    %scalibrate%s                           measure sustainable VDF iterations/second
    %sbenchmark%s [duration]                run a fixed-length VDF benchmark
    %sseal%s      <deltas.json> <title> <out.json>   seal one batch of deltas into a signed envelope
    %ssign%s      <envelope.json>           sign an envelope in place
    %sverify%s    <envelope.json>           verify a signed envelope end-to-end
    %sanalyze%s   <envelope.json>           score a chain's authorship characteristics
    %ssave%s      <envelope.json>           archive a signed envelope in the local store
    %sload%s      <id> <out.json>           write a stored envelope back out to a file
    %shistory%s   [limit]                   list recently archived documents
    %skeystore-keygen%s <path>              generate a 32-byte at-rest base key
    %sencrypt%s   <envelope.json> <keyfile> <out.json>   seal an envelope at rest
    %sdecrypt%s   <sealed.json> <keyfile> <out.json>     unseal an at-rest envelope
    %shelp%s                                show this message
    %sversion%s                             show version information
`,
		c.Bold, c.Reset,
		c.Bold, c.Reset,
		c.Cyan, c.Reset, c.Cyan, c.Reset, c.Cyan, c.Reset, c.Cyan, c.Reset,
		c.Cyan, c.Reset, c.Cyan, c.Reset, c.Cyan, c.Reset, c.Cyan, c.Reset,
		c.Cyan, c.Reset, c.Cyan, c.Reset, c.Cyan, c.Reset, c.Cyan, c.Reset,
		c.Cyan, c.Reset, c.Cyan, c.Reset, c.Cyan, c.Reset,
	)
}

func loadComputer(cfg *config.Config) *vdf.Computer {
	if cfg.ModulusHex != "" {
		computer, err := vdf.New(cfg.ModulusHex)
		if err != nil {
			printError(fmt.Sprintf("invalid modulus in config: %v", err))
			os.Exit(1)
		}
		return computer
	}
	return vdf.NewDefault()
}

func cmdKeygen(cfg *config.Config, args []string) {
	path := cfg.SigningKeyPath
	if len(args) >= 1 {
		path = args[0]
	}

	priv, err := envelope.GeneratePrivateKey()
	if err != nil {
		printError(fmt.Sprintf("generating key: %v", err))
		os.Exit(1)
	}
	if err := envelope.SavePrivateKey(path, priv); err != nil {
		printError(fmt.Sprintf("saving key: %v", err))
		os.Exit(1)
	}
	fmt.Printf("%swrote signing key%s %s\n", c.Green, c.Reset, path)
}

func cmdCalibrate(cfg *config.Config, args []string) {
	computer := loadComputer(cfg)
	perSec := computer.Calibrate()
	iters := computer.EstimateIterationsForSeconds(cfg.EpochTargetSeconds)
	fmt.Printf("calibrated: %d iterations/second (target: %d iterations for a %.0fs epoch)\n",
		perSec, iters, cfg.EpochTargetSeconds)
}

func cmdBenchmark(cfg *config.Config, args []string) {
	duration := 2 * time.Second
	if len(args) >= 1 {
		if d, err := time.ParseDuration(args[0]); err == nil {
			duration = d
		}
	}
	computer := loadComputer(cfg)
	perSec, err := computer.Benchmark(duration)
	if err != nil {
		printError(fmt.Sprintf("benchmark: %v", err))
		os.Exit(1)
	}
	fmt.Printf("%d iterations/second (measured over %s)\n", perSec, duration)
}

// cmdSeal buffers every delta group from deltas.json, runs one session
// until the first epoch is sealed, then builds and signs an envelope
// from the result.
func cmdSeal(cfg *config.Config, args []string) {
	if len(args) < 3 {
		printError("usage: witnessctl seal <deltas.json> <title> <out.json>")
		os.Exit(1)
	}
	deltasPath, title, outPath := args[0], args[1], args[2]

	raw, err := os.ReadFile(deltasPath)
	if err != nil {
		printError(fmt.Sprintf("reading deltas: %v", err))
		os.Exit(1)
	}
	var groups []delta.Group
	if err := json.Unmarshal(raw, &groups); err != nil {
		printError(fmt.Sprintf("parsing deltas: %v", err))
		os.Exit(1)
	}
	if len(groups) == 0 {
		printError("no delta groups to seal")
		os.Exit(1)
	}

	computer := loadComputer(cfg)
	target := time.Duration(cfg.EpochTargetSeconds * float64(time.Second))
	sess := session.New(computer, target)

	sealed := make(chan *epoch.Epoch, 1)
	sess.OnEpochSealed(func(e *epoch.Epoch) {
		select {
		case sealed <- e:
		default:
		}
	})
	sess.OnProgress(func(percent int) {
		fmt.Fprintf(os.Stderr, "\r[%3d%%] sealing epoch", percent)
	})

	for _, g := range groups {
		sess.AddDelta(g)
	}
	sess.Start()

	select {
	case <-sealed:
		fmt.Fprintln(os.Stderr)
	case <-time.After(2 * time.Minute):
		printError("timed out waiting for the epoch to seal")
		os.Exit(1)
	}
	sess.Stop()

	content := envelope.Content{RichTextRepresentation: "", DeltaSnapshot: raw}
	env, err := envelope.Build(title, content, time.Now().UTC().Format(time.RFC3339), sess.Chain())
	if err != nil {
		printError(fmt.Sprintf("building envelope: %v", err))
		os.Exit(1)
	}

	if priv, err := envelope.LoadPrivateKey(cfg.SigningKeyPath); err == nil {
		if err := envelope.Sign(env, priv); err != nil {
			printError(fmt.Sprintf("signing envelope: %v", err))
			os.Exit(1)
		}
	} else {
		fmt.Fprintf(os.Stderr, "%swarning%s: no signing key at %s, writing an unsigned envelope\n", c.Yellow, c.Reset, cfg.SigningKeyPath)
	}

	writeEnvelope(outPath, env)
	fmt.Printf("%ssealed%s %s (%d epoch(s))\n", c.Green, c.Reset, outPath, env.Metadata.EpochCount)
}

func cmdSign(cfg *config.Config, args []string) {
	if len(args) < 1 {
		printError("usage: witnessctl sign <envelope.json>")
		os.Exit(1)
	}
	env := readEnvelope(args[0])

	priv, err := envelope.LoadPrivateKey(cfg.SigningKeyPath)
	if err != nil {
		printError(fmt.Sprintf("loading signing key: %v", err))
		os.Exit(1)
	}
	if err := envelope.Sign(env, priv); err != nil {
		printError(fmt.Sprintf("signing: %v", err))
		os.Exit(1)
	}
	writeEnvelope(args[0], env)
	fmt.Printf("%ssigned%s %s\n", c.Green, c.Reset, args[0])
}

func cmdVerify(cfg *config.Config, args []string) {
	if len(args) < 1 {
		printError("usage: witnessctl verify <envelope.json>")
		os.Exit(1)
	}
	env := readEnvelope(args[0])
	computer := loadComputer(cfg)

	result := verifier.Verify(env, computer, func(percent int, message string) {
		fmt.Fprintf(os.Stderr, "\r[%3d%%] %s", percent, message)
	})
	fmt.Fprintln(os.Stderr)

	fmt.Printf("valid: %v (%d/%d epochs, signature valid: %v)\n",
		result.Valid, result.VerifiedEpochs, result.TotalEpochs, result.SignatureValid)
	for _, e := range result.Errors {
		fmt.Printf("  - %s\n", e)
	}
	if !result.Valid {
		os.Exit(1)
	}
}

func cmdAnalyze(args []string) {
	if len(args) < 1 {
		printError("usage: witnessctl analyze <envelope.json>")
		os.Exit(1)
	}
	env := readEnvelope(args[0])
	score := analyzer.Analyze(env.ProofChain)

	fmt.Printf("human score: %.3f\n", score.HumanScore)
	if score.Reason != "" {
		fmt.Printf("short-circuit: %s\n", score.Reason)
	}
	for name, v := range score.Details {
		fmt.Printf("  %-20s %.3f\n", name, v)
	}
}

func cmdSave(cfg *config.Config, args []string) {
	if len(args) < 1 {
		printError("usage: witnessctl save <envelope.json>")
		os.Exit(1)
	}
	env := readEnvelope(args[0])

	s, err := store.Open(cfg.StorePath)
	if err != nil {
		printError(fmt.Sprintf("opening store: %v", err))
		os.Exit(1)
	}
	defer s.Close()

	id, err := s.Save(env)
	if err != nil {
		printError(fmt.Sprintf("saving: %v", err))
		os.Exit(1)
	}
	fmt.Printf("%ssaved%s %s as document #%d\n", c.Green, c.Reset, env.Title, id)
}

func cmdLoad(cfg *config.Config, args []string) {
	if len(args) < 2 {
		printError("usage: witnessctl load <id> <out.json>")
		os.Exit(1)
	}
	var id int64
	if _, err := fmt.Sscanf(args[0], "%d", &id); err != nil {
		printError("id must be an integer")
		os.Exit(1)
	}

	s, err := store.Open(cfg.StorePath)
	if err != nil {
		printError(fmt.Sprintf("opening store: %v", err))
		os.Exit(1)
	}
	defer s.Close()

	env, err := s.Load(id)
	if err != nil {
		printError(fmt.Sprintf("loading: %v", err))
		os.Exit(1)
	}
	if env == nil {
		printError(fmt.Sprintf("no document with id %d", id))
		os.Exit(1)
	}
	writeEnvelope(args[1], env)
	fmt.Printf("%swrote%s %s\n", c.Green, c.Reset, args[1])
}

func cmdHistory(cfg *config.Config, args []string) {
	limit := 20
	if len(args) >= 1 {
		fmt.Sscanf(args[0], "%d", &limit)
	}

	s, err := store.Open(cfg.StorePath)
	if err != nil {
		printError(fmt.Sprintf("opening store: %v", err))
		os.Exit(1)
	}
	defer s.Close()

	records, err := s.History(limit)
	if err != nil {
		printError(fmt.Sprintf("listing history: %v", err))
		os.Exit(1)
	}
	for _, r := range records {
		fmt.Printf("#%-4d %-30s epochs=%-3d %s\n", r.ID, r.Title, r.EpochCount, r.SavedAt.Format(time.RFC3339))
	}
}

// cmdKeystoreKeygen writes a fresh 32-byte at-rest base key to path, for
// use with encrypt/decrypt.
func cmdKeystoreKeygen(args []string) {
	if len(args) < 1 {
		printError("usage: witnessctl keystore-keygen <path>")
		os.Exit(1)
	}
	key := make([]byte, keystore.BaseKeySize)
	if _, err := rand.Read(key); err != nil {
		printError(fmt.Sprintf("generating key: %v", err))
		os.Exit(1)
	}
	if err := os.WriteFile(args[0], key, 0600); err != nil {
		printError(fmt.Sprintf("writing key: %v", err))
		os.Exit(1)
	}
	fmt.Printf("%swrote at-rest key%s %s\n", c.Green, c.Reset, args[0])
}

// cmdEncrypt seals a built envelope for storage at rest, leaving its
// title and timestamp in the clear for browsing per the at-rest wrapper
// design.
func cmdEncrypt(args []string) {
	if len(args) < 3 {
		printError("usage: witnessctl encrypt <envelope.json> <keyfile> <out.json>")
		os.Exit(1)
	}
	env := readEnvelope(args[0])
	key := readBaseKey(args[1])

	raw, err := json.Marshal(env)
	if err != nil {
		printError(fmt.Sprintf("marshaling envelope: %v", err))
		os.Exit(1)
	}
	sealed, err := keystore.Seal(key, env.Title, env.Timestamp, raw)
	if err != nil {
		printError(fmt.Sprintf("sealing: %v", err))
		os.Exit(1)
	}
	out, err := keystore.MarshalSealed(sealed)
	if err != nil {
		printError(fmt.Sprintf("marshaling sealed payload: %v", err))
		os.Exit(1)
	}
	if err := os.WriteFile(args[2], out, 0644); err != nil {
		printError(fmt.Sprintf("writing %s: %v", args[2], err))
		os.Exit(1)
	}
	fmt.Printf("%ssealed%s %s\n", c.Green, c.Reset, args[2])
}

// cmdDecrypt reverses cmdEncrypt, writing the recovered envelope JSON.
func cmdDecrypt(args []string) {
	if len(args) < 3 {
		printError("usage: witnessctl decrypt <sealed.json> <keyfile> <out.json>")
		os.Exit(1)
	}
	raw, err := os.ReadFile(args[0])
	if err != nil {
		printError(fmt.Sprintf("reading %s: %v", args[0], err))
		os.Exit(1)
	}
	sealed, err := keystore.ParseSealed(raw)
	if err != nil {
		printError(fmt.Sprintf("parsing sealed payload: %v", err))
		os.Exit(1)
	}
	key := readBaseKey(args[1])

	plaintext, err := keystore.Unseal(key, sealed)
	if err != nil {
		printError(fmt.Sprintf("unsealing: %v", err))
		os.Exit(1)
	}
	if err := os.WriteFile(args[2], plaintext, 0644); err != nil {
		printError(fmt.Sprintf("writing %s: %v", args[2], err))
		os.Exit(1)
	}
	fmt.Printf("%sunsealed%s %s (%s, %s)\n", c.Green, c.Reset, args[2], sealed.Metadata.Title, sealed.Metadata.Timestamp)
}

func readBaseKey(path string) []byte {
	key, err := os.ReadFile(path)
	if err != nil {
		printError(fmt.Sprintf("reading keyfile %s: %v", path, err))
		os.Exit(1)
	}
	if len(key) != keystore.BaseKeySize {
		printError(fmt.Sprintf("keyfile %s must contain exactly %d raw bytes, got %d", path, keystore.BaseKeySize, len(key)))
		os.Exit(1)
	}
	return key
}

func readEnvelope(path string) *envelope.Envelope {
	raw, err := os.ReadFile(path)
	if err != nil {
		printError(fmt.Sprintf("reading %s: %v", path, err))
		os.Exit(1)
	}
	var env envelope.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		printError(fmt.Sprintf("parsing %s: %v", path, err))
		os.Exit(1)
	}
	return &env
}

func writeEnvelope(path string, env *envelope.Envelope) {
	raw, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		printError(fmt.Sprintf("marshaling envelope: %v", err))
		os.Exit(1)
	}
	if err := os.WriteFile(path, raw, 0644); err != nil {
		printError(fmt.Sprintf("writing %s: %v", path, err))
		os.Exit(1)
	}
}
