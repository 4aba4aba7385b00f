// Copyright 2026 The Chaperone Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestCommand_Execute_DispatchesToSubcommand(t *testing.T) {
	var called string

	root := &Command{
		Name: "chaperone",
		Subcommands: []*Command{
			{
				Name: "version",
				Run: func(args []string) error {
					called = "version"
					return nil
				},
			},
			{
				Name: "windows",
				Run: func(args []string) error {
					called = "windows"
					return nil
				},
			},
		},
	}

	if err := root.Execute([]string{"windows"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "windows" {
		t.Errorf("dispatched to %q, want %q", called, "windows")
	}
}

func TestCommand_Execute_PassesPositionalArgs(t *testing.T) {
	var receivedArgs []string

	root := &Command{
		Name: "chaperone",
		Subcommands: []*Command{
			{
				Name: "approve",
				Run: func(args []string) error {
					receivedArgs = args
					return nil
				},
			},
		},
	}

	if err := root.Execute([]string{"approve", "42"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if len(receivedArgs) != 1 || receivedArgs[0] != "42" {
		t.Errorf("args = %v, want [42]", receivedArgs)
	}
}

func TestCommand_Execute_FlagParsing(t *testing.T) {
	var output string
	var target string

	command := &Command{
		Name: "screenshot",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("screenshot", pflag.ContinueOnError)
			flagSet.StringVar(&output, "output", "frame.png", "output file")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				target = args[0]
			}
			return nil
		},
	}

	if err := command.Execute([]string{"--output", "shot.png", "0x2a"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if output != "shot.png" {
		t.Errorf("output = %q, want %q", output, "shot.png")
	}
	if target != "0x2a" {
		t.Errorf("target = %q, want %q", target, "0x2a")
	}
}

func TestCommand_Execute_ParamsDeriveFlags(t *testing.T) {
	type screenshotParams struct {
		Output  string `flag:"output,o" desc:"output file" default:"frame.png"`
		Refresh bool   `flag:"refresh" desc:"force a fresh capture"`
	}

	var params screenshotParams
	command := &Command{
		Name:   "screenshot",
		Params: func() any { return &params },
		Run:    func(args []string) error { return nil },
	}

	if err := command.Execute([]string{"-o", "shot.png", "--refresh"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if params.Output != "shot.png" {
		t.Errorf("Output = %q, want %q", params.Output, "shot.png")
	}
	if !params.Refresh {
		t.Error("Refresh = false, want true")
	}
}

func TestCommand_Execute_UnknownFlagSuggestion(t *testing.T) {
	command := &Command{
		Name: "screenshot",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("screenshot", pflag.ContinueOnError)
			flagSet.Bool("refresh", false, "force a fresh capture")
			flagSet.String("output", "frame.png", "output file")
			return flagSet
		},
		Run: func(args []string) error { return nil },
	}

	err := command.Execute([]string{"--refersh"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown flag")
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "did you mean --refresh") {
		t.Errorf("error = %q, want suggestion for '--refresh'", errStr)
	}
	// Suggestion should be on the same line as the error, not buried.
	if !strings.Contains(errStr, "refersh") {
		t.Errorf("error = %q, should mention the bad flag", errStr)
	}
	// Should include a pointer to --help.
	if !strings.Contains(errStr, "--help") {
		t.Errorf("error = %q, should point to --help", errStr)
	}
}

func TestCommand_Execute_UnknownFlagNoSuggestion(t *testing.T) {
	command := &Command{
		Name: "screenshot",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("screenshot", pflag.ContinueOnError)
			flagSet.Bool("refresh", false, "force a fresh capture")
			return flagSet
		},
		Run: func(args []string) error { return nil },
	}

	err := command.Execute([]string{"--zzzzzzzzz"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown flag")
	}
	if strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error = %q, should not suggest for distant flag", err.Error())
	}
	if !strings.Contains(err.Error(), "--help") {
		t.Errorf("error = %q, should point to --help", err.Error())
	}
}

func TestCommand_Execute_UnknownSubcommandSuggestion(t *testing.T) {
	root := &Command{
		Name: "chaperone",
		Subcommands: []*Command{
			{Name: "windows"},
			{Name: "approvals"},
			{Name: "version"},
		},
	}

	err := root.Execute([]string{"windoes"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown subcommand")
	}
	if !strings.Contains(err.Error(), "did you mean \"windows\"") {
		t.Errorf("error = %q, want suggestion for 'windows'", err.Error())
	}
}

func TestCommand_Execute_UnknownSubcommandNoSuggestion(t *testing.T) {
	root := &Command{
		Name: "chaperone",
		Subcommands: []*Command{
			{Name: "windows"},
			{Name: "approvals"},
		},
	}

	err := root.Execute([]string{"zzzzzzz"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown subcommand")
	}
	if strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error = %q, should not contain suggestion for distant input", err.Error())
	}
}

func TestCommand_Execute_HelpFlag(t *testing.T) {
	for _, helpArg := range []string{"-h", "--help", "help"} {
		t.Run(helpArg, func(t *testing.T) {
			root := &Command{
				Name:    "chaperone",
				Summary: "Display control arbitration",
				Subcommands: []*Command{
					{Name: "windows", Summary: "List visible windows"},
				},
			}

			err := root.Execute([]string{helpArg})
			if err != nil {
				t.Errorf("Execute(%q) error: %v", helpArg, err)
			}
		})
	}
}

func TestCommand_Execute_NoArgsShowsHelp(t *testing.T) {
	root := &Command{
		Name: "chaperone",
		Subcommands: []*Command{
			{Name: "windows", Summary: "List visible windows"},
		},
	}

	err := root.Execute([]string{})
	if err == nil {
		t.Fatal("Execute() = nil, want error for missing subcommand")
	}
	if !strings.Contains(err.Error(), "subcommand required") {
		t.Errorf("error = %q, want 'subcommand required'", err.Error())
	}
}

func TestCommand_PrintHelp(t *testing.T) {
	command := &Command{
		Name:        "chaperone",
		Description: "Control plane for a supervised display.",
		Subcommands: []*Command{
			{Name: "status", Summary: "Show gating mode and pipeline counters"},
			{Name: "windows", Summary: "List visible windows"},
			{Name: "version", Summary: "Print version information"},
		},
		Examples: []Example{
			{
				Description: "Switch the display to autonomous mode",
				Command:     "chaperone set-mode autonomous",
			},
			{
				Description: "Save a screenshot of window 0x2a",
				Command:     "chaperone screenshot 0x2a -o shot.png",
			},
		},
	}

	var buffer bytes.Buffer
	command.PrintHelp(&buffer)
	output := buffer.String()

	// Verify structural elements are present.
	for _, want := range []string{
		"Control plane for a supervised display.",
		"Usage:",
		"chaperone <command> [flags]",
		"Commands:",
		"status",
		"Show gating mode and pipeline counters",
		"windows",
		"List visible windows",
		"Examples:",
		"chaperone set-mode autonomous",
		"chaperone screenshot 0x2a",
		"Run 'chaperone <command> --help'",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("help output missing %q\n\nFull output:\n%s", want, output)
		}
	}
}

func TestCommand_PrintHelp_WithFlags(t *testing.T) {
	command := &Command{
		Name:    "events",
		Summary: "Stream daemon events",
		Usage:   "chaperone events [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("events", pflag.ContinueOnError)
			flagSet.String("events", "", "event endpoint URL")
			flagSet.Bool("follow", false, "keep streaming until interrupted")
			return flagSet
		},
	}

	var buffer bytes.Buffer
	command.PrintHelp(&buffer)
	output := buffer.String()

	for _, want := range []string{
		"chaperone events [flags]",
		"Flags:",
		"events",
		"follow",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("help output missing %q\n\nFull output:\n%s", want, output)
		}
	}
}

func TestCommand_FullName(t *testing.T) {
	root := &Command{Name: "chaperone"}
	approvals := &Command{Name: "approvals", parent: root}

	if got := root.fullName(); got != "chaperone" {
		t.Errorf("root.fullName() = %q, want %q", got, "chaperone")
	}
	if got := approvals.fullName(); got != "chaperone approvals" {
		t.Errorf("approvals.fullName() = %q, want %q", got, "chaperone approvals")
	}
}
