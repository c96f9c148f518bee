// Command rulescan manages the fabric-engine analysis binary and runs it
// against fabric items with a rules document. It also ships small utilities
// for working with rules documents themselves.
package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"

	"github.com/fabrictools/rulescan/core/errors"
	"github.com/fabrictools/rulescan/core/jsonval"
	"github.com/fabrictools/rulescan/internal/config"
	"github.com/fabrictools/rulescan/internal/engine"
	"github.com/fabrictools/rulescan/internal/history"
	"github.com/fabrictools/rulescan/internal/logging"
	"github.com/fabrictools/rulescan/internal/runner"
	"github.com/fabrictools/rulescan/internal/sink"
	"github.com/fabrictools/rulescan/internal/validation"
)

const version = "0.1.0"

// CLI defines the command-line interface for rulescan.
var CLI struct {
	// Global flags
	Config string `name:"config" short:"c" help:"Config file path" type:"path"`

	// Command groups (noun-first organization)
	Engine  EngineGroup  `cmd:"" help:"Engine lifecycle (install, update, status)"`
	Run     RunCmd       `cmd:"" help:"Run the engine against a fabric item"`
	RunRule RunRuleCmd   `cmd:"" help:"Run a single rule from a rules document"`
	Rules   RulesGroup   `cmd:"" help:"Rules document utilities (find, wrap, unwrap, init)"`
	History HistoryGroup `cmd:"" help:"Run history"`
	Version VersionCmd   `cmd:"" help:"Print version information"`
}

// EngineGroup contains engine lifecycle operations.
type EngineGroup struct {
	Install EngineInstallCmd `cmd:"" help:"Download and install the engine if needed"`
	Update  EngineUpdateCmd  `cmd:"" help:"Force a fresh engine download"`
	Status  EngineStatusCmd  `cmd:"" help:"Show the installed engine"`
}

// RulesGroup contains rules document utilities.
type RulesGroup struct {
	Find   RulesFindCmd   `cmd:"" help:"Find a rule by id in a rules document"`
	Wrap   RulesWrapCmd   `cmd:"" help:"Wrap a JSON document under a marker key"`
	Unwrap RulesUnwrapCmd `cmd:"" help:"Restore a document wrapped under a marker key"`
	Init   RulesInitCmd   `cmd:"" help:"Create a rules folder with a starter document"`
}

// HistoryGroup contains run-history operations.
type HistoryGroup struct {
	List HistoryListCmd `cmd:"" help:"List recorded engine runs"`
}

// loadConfig loads the configuration and initializes logging from it.
func loadConfig() (*config.Config, error) {
	path := CLI.Config
	if path == "" {
		path = config.DefaultConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logging.InitLogger(cfg.LogLevel(), cfg.LogFormat())
	return cfg, nil
}

// promptConsent asks on the terminal before the first-ever engine download.
func promptConsent(prompt string) bool {
	fmt.Fprintf(os.Stderr, "%s [y/N]: ", prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

// resolveRulesPath turns a --rules value into a concrete path. A bare file
// name is validated and looked up in the workspace rules folder; an empty
// value means the default document in that folder.
func resolveRulesPath(cfg *config.Config, workspace, rules string) (string, error) {
	if rules == "" {
		return filepath.Join(cfg.RulesDir(workspace), "rules.json"), nil
	}
	if strings.ContainsAny(rules, "/\\") {
		return rules, nil
	}
	name, err := validation.ValidateRulesFileName(rules)
	if err != nil {
		return "", err
	}
	return filepath.Join(cfg.RulesDir(workspace), name), nil
}

// recordRun stores a finished run in the history database. History failures
// never fail the run itself.
func recordRun(cfg *config.Config, res *runner.Result, target, rules string) {
	if !cfg.History.Enabled || res == nil {
		return
	}
	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		logging.Warn("history unavailable", "error", err)
		return
	}
	defer store.Close()

	err = store.Record(history.Entry{
		RunID:     res.RunID,
		Target:    target,
		RulesFile: filepath.Base(rules),
		ExitCode:  res.ExitCode,
		Success:   res.Success,
		Duration:  res.Duration,
		StartedAt: time.Now().Add(-res.Duration),
	})
	if err != nil {
		logging.Warn("history record failed", "error", err)
	}
}

// EngineInstallCmd downloads and installs the engine unless a valid install
// is already present.
type EngineInstallCmd struct{}

func (c *EngineInstallCmd) Run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// An explicit install command is itself the download consent.
	m := engine.NewManager(cfg, nil)
	path, err := m.EnsureAvailable(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("Engine ready: %s\n", path)
	return nil
}

// EngineUpdateCmd forces a fresh download regardless of freshness.
type EngineUpdateCmd struct{}

func (c *EngineUpdateCmd) Run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	m := engine.NewManager(cfg, nil)
	path, err := m.ForceUpdate(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("Engine updated: %s\n", path)
	return nil
}

// EngineStatusCmd shows the installed engine.
type EngineStatusCmd struct{}

func (c *EngineStatusCmd) Run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st := engine.NewManager(cfg, nil).CurrentStatus()
	if !st.Installed {
		fmt.Println("Engine: not installed")
		return nil
	}

	fmt.Printf("Engine: %s\n", st.Path)
	fmt.Printf("  Fresh: %v (marker age %s, interval %dh)\n",
		st.Fresh, st.MarkerAge.Round(time.Minute), cfg.Engine.UpdateIntervalHours)
	if st.Manifest != nil {
		fmt.Printf("  Version: %s\n", st.Manifest.Version)
		fmt.Printf("  Archive: %s\n", st.Manifest.Archive)
		fmt.Printf("  BLAKE3: %s\n", st.Manifest.Blake3)
		fmt.Printf("  Installed: %s\n", st.Manifest.InstalledAt.Format(time.RFC3339))
	}
	return nil
}

// RunCmd runs the engine against a fabric item, streaming output.
type RunCmd struct {
	Target     string        `arg:"" help:"Fabric item directory or file" type:"path"`
	Rules      string        `help:"Rules document (bare name resolves in the workspace rules folder)"`
	Formats    string        `help:"Report formats passed to the engine" default:"console"`
	StreamAddr string        `name:"stream-addr" help:"Serve the output stream to WebSocket subscribers on this address"`
	Timeout    time.Duration `help:"Wall-clock limit for the run" default:"5m"`
}

func (c *RunCmd) Run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	m := engine.NewManager(cfg, promptConsent)
	enginePath, err := m.EnsureAvailable(ctx)
	if err != nil {
		return err
	}

	rulesPath, err := resolveRulesPath(cfg, c.Target, c.Rules)
	if err != nil {
		return err
	}

	s := sink.New(os.Stdout)
	defer s.Close()

	if c.StreamAddr != "" {
		hub := sink.NewHub()
		go hub.Run()
		s.AttachHub(hub)

		mux := http.NewServeMux()
		mux.HandleFunc("/stream", hub.Handler)
		srv := &http.Server{Addr: c.StreamAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logging.Error("stream server failed", "error", err)
			}
		}()
		defer srv.Close()
		logging.Info("stream endpoint listening", "addr", c.StreamAddr)
	}

	res, runErr := runner.New(s).Run(ctx, runner.Request{
		EnginePath: enginePath,
		TargetPath: c.Target,
		RulesPath:  rulesPath,
		Formats:    c.Formats,
		Timeout:    c.Timeout,
	})
	recordRun(cfg, res, c.Target, rulesPath)
	if runErr != nil {
		return runErr
	}

	fmt.Printf("Run %s completed in %s\n", res.RunID, res.Duration.Round(time.Millisecond))
	return nil
}

// RunRuleCmd extracts a single rule from a rules document into a temporary
// file and runs the engine against it. Output is captured and surfaced only
// when the formats include the console channel; the temporary file is
// removed when the run ends.
type RunRuleCmd struct {
	Target  string        `arg:"" help:"Fabric item directory or file" type:"path"`
	ID      string        `name:"id" required:"" help:"Rule id to run"`
	Rules   string        `help:"Rules document holding the rule"`
	Formats string        `help:"Report formats passed to the engine" default:"console"`
	Timeout time.Duration `help:"Wall-clock limit for the run" default:"5m"`
}

func (c *RunRuleCmd) Run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	m := engine.NewManager(cfg, promptConsent)
	enginePath, err := m.EnsureAvailable(ctx)
	if err != nil {
		return err
	}

	rulesPath, err := resolveRulesPath(cfg, c.Target, c.Rules)
	if err != nil {
		return err
	}
	doc, err := os.ReadFile(rulesPath)
	if err != nil {
		return fmt.Errorf("reading rules document: %w", err)
	}

	rule, ok := jsonval.FindRuleByID(doc, c.ID)
	if !ok {
		return errors.NewNotFound("rule", c.ID)
	}

	single := jsonval.Object(map[string]*jsonval.Value{
		jsonval.RulesCollectionField: jsonval.Array(rule),
	})
	data, err := jsonval.Encode(single)
	if err != nil {
		return fmt.Errorf("encoding single-rule document: %w", err)
	}

	tempPath := filepath.Join(os.TempDir(), runner.TempRulePrefix+uuid.NewString()+".json")
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("writing temporary rules file: %w", err)
	}

	s := sink.New(nil) // captured run, no console streaming
	defer s.Close()

	res, runErr := runner.New(s).Run(ctx, runner.Request{
		EnginePath: enginePath,
		TargetPath: c.Target,
		RulesPath:  tempPath,
		Formats:    c.Formats,
		SingleRule: true,
		Timeout:    c.Timeout,
		Cleanup:    func() { os.Remove(tempPath) },
	})
	recordRun(cfg, res, c.Target, rulesPath)
	if runErr != nil {
		return runErr
	}

	if strings.Contains(c.Formats, "console") {
		for _, line := range res.Output {
			fmt.Println(line)
		}
	}
	fmt.Printf("Rule %s completed in %s\n", c.ID, res.Duration.Round(time.Millisecond))
	return nil
}

// RulesFindCmd finds a rule by id and prints it.
type RulesFindCmd struct {
	Doc string `arg:"" help:"Rules document" type:"existingfile"`
	ID  string `name:"id" required:"" help:"Rule id to find"`
}

func (c *RulesFindCmd) Run() error {
	if _, err := loadConfig(); err != nil {
		return err
	}

	doc, err := os.ReadFile(c.Doc)
	if err != nil {
		return fmt.Errorf("reading rules document: %w", err)
	}

	rule, ok := jsonval.FindRuleByID(doc, c.ID)
	if !ok {
		return errors.NewNotFound("rule", c.ID)
	}

	out, err := jsonval.EncodeIndent(rule)
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// RulesWrapCmd wraps a JSON document under a marker key.
type RulesWrapCmd struct {
	Doc    string `arg:"" help:"JSON document to wrap" type:"existingfile"`
	Marker string `help:"Marker key" default:"logCondition"`
	Out    string `help:"Output path (default: stdout)" type:"path"`
}

func (c *RulesWrapCmd) Run() error {
	if _, err := loadConfig(); err != nil {
		return err
	}

	doc, err := os.ReadFile(c.Doc)
	if err != nil {
		return fmt.Errorf("reading document: %w", err)
	}

	wrapped, err := jsonval.Wrap(doc, c.Marker)
	if err != nil {
		return err
	}
	return writeOutput(c.Out, wrapped)
}

// RulesUnwrapCmd restores a document wrapped under a marker key.
type RulesUnwrapCmd struct {
	Doc    string `arg:"" help:"Wrapped JSON document" type:"existingfile"`
	Marker string `help:"Marker key" default:"logCondition"`
	Out    string `help:"Output path (default: stdout)" type:"path"`
}

func (c *RulesUnwrapCmd) Run() error {
	if _, err := loadConfig(); err != nil {
		return err
	}

	doc, err := os.ReadFile(c.Doc)
	if err != nil {
		return fmt.Errorf("reading document: %w", err)
	}

	unwrapped, err := jsonval.Unwrap(doc, c.Marker)
	if err != nil {
		return err
	}
	return writeOutput(c.Out, unwrapped)
}

func writeOutput(path string, data []byte) error {
	if path == "" {
		fmt.Println(string(data))
		return nil
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	return nil
}

// RulesInitCmd creates the workspace rules folder with a starter document.
type RulesInitCmd struct {
	Workspace string `arg:"" optional:"" help:"Workspace directory" type:"path" default:"."`
	Name      string `help:"Rules document name" default:"rules.json"`
}

// starterRules is the template written by rules init.
const starterRules = `{
  "rules": [
    {
      "id": "example-rule",
      "description": "Describe what this rule checks",
      "severity": "warning",
      "condition": {
        "==": [1, 1]
      }
    }
  ]
}
`

func (c *RulesInitCmd) Run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	name, err := validation.ValidateRulesFileName(c.Name)
	if err != nil {
		return err
	}

	dir := cfg.RulesDir(c.Workspace)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating rules folder: %w", err)
	}

	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	if err := os.WriteFile(path, []byte(starterRules), 0644); err != nil {
		return fmt.Errorf("writing starter document: %w", err)
	}

	fmt.Printf("Created: %s\n", path)
	return nil
}

// HistoryListCmd lists recorded engine runs.
type HistoryListCmd struct {
	Limit int `help:"Maximum entries to show" default:"20"`
}

func (c *HistoryListCmd) Run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.List(c.Limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No runs recorded")
		return nil
	}

	for _, e := range entries {
		status := "ok"
		if !e.Success {
			status = fmt.Sprintf("exit %d", e.ExitCode)
		}
		fmt.Printf("%s  %-8s %-10s %s (%s)\n",
			e.StartedAt.Local().Format("2006-01-02 15:04:05"),
			status, e.Duration.Round(time.Millisecond), e.Target, e.RulesFile)
	}
	return nil
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("rulescan %s\n", version)
	return nil
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("rulescan"),
		kong.Description("rulescan - fabric-engine supervisor and rules document tools"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	err := ctx.Run(ctx)
	ctx.FatalIfErrorf(err)
}
