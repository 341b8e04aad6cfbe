package main

import (
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"facewatch/internal/config"
	"facewatch/internal/deps"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigValidateCommand(ctx))
	configCmd.AddCommand(newConfigInitCommand())

	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(cmd.OutOrStdout(), targetPath, overwrite)
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	return cmd
}

func runConfigInit(out io.Writer, targetPath string, overwrite bool) error {
	target, err := config.ExpandPath(strings.TrimSpace(targetPath))
	if err == nil && target == "" {
		target, err = config.DefaultConfigPath()
	}
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if _, err := os.Stat(target); err == nil && !overwrite {
		return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := config.CreateSample(target); err != nil {
		return fmt.Errorf("create sample config: %w", err)
	}

	// Read it back so the summary shows what facewatch will actually use.
	cfg, _, _, err := config.Load(target)
	if err != nil {
		return fmt.Errorf("load written config: %w", err)
	}
	fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
	fmt.Fprintln(out, renderFields([][2]string{
		{"Data dir", cfg.Paths.DataDir},
		{"Record store", cfg.Store.Path},
		{"Camera device", cfg.Camera.Device},
		{"Engine script", dash(cfg.Engine.Script)},
	}))
	if cfg.Engine.Script == "" {
		fmt.Fprintln(out, "Set engine.script (or export FACEWATCH_ENGINE_SCRIPT), then run facewatch config validate.")
	}
	return nil
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file and the settings it points at",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config path: %s\n", ctx.configPath)
			if _, err := os.Stat(ctx.configPath); err != nil {
				fmt.Fprintln(out, "Config file did not exist; defaults were used")
			}

			checks := checkSettings(cfg)
			rows := make([][]string, 0, len(checks))
			failed := 0
			for _, c := range checks {
				rows = append(rows, []string{c.key, dash(c.value), c.result()})
				if c.severity == severityError {
					failed++
				}
			}
			fmt.Fprintln(out, renderTable([]string{"Setting", "Value", "Check"}, rows, nil))
			if failed > 0 {
				return fmt.Errorf("configuration has %d problem(s)", failed)
			}
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}

type checkSeverity int

const (
	severityOK checkSeverity = iota
	severityWarning
	severityError
)

type settingCheck struct {
	key      string
	value    string
	severity checkSeverity
	detail   string
}

func (c settingCheck) result() string {
	switch c.severity {
	case severityError:
		return "error: " + c.detail
	case severityWarning:
		return "warning: " + c.detail
	default:
		if c.detail != "" {
			return "ok (" + c.detail + ")"
		}
		return "ok"
	}
}

// checkSettings looks past the file's syntax at what its values refer to.
// Engine and store problems prevent startup; camera problems only disable
// the webcam workflow, so they are warnings.
func checkSettings(cfg *config.Config) []settingCheck {
	var checks []settingCheck
	fromStatus := func(key string, st deps.Status, severity checkSeverity) settingCheck {
		c := settingCheck{key: key, value: st.Command}
		if !st.Available {
			c.severity = severity
			c.detail = st.Detail
		}
		return c
	}

	script := fromStatus("engine.script", deps.CheckPath("Engine script", cfg.Engine.Script, "", unix.R_OK), severityError)
	if script.severity == severityOK {
		if info, err := os.Stat(cfg.Engine.Script); err == nil && info.IsDir() {
			script.severity = severityError
			script.detail = "is a directory"
		}
	}
	checks = append(checks, script)

	binaries := []deps.Requirement{{Name: "engine.interpreter", Command: cfg.Engine.Interpreter}}
	if cfg.Engine.Launcher != "" {
		binaries = append(binaries, deps.Requirement{Name: "engine.launcher", Command: cfg.Engine.Launcher})
	}
	for _, st := range deps.CheckBinaries(binaries) {
		checks = append(checks, fromStatus(st.Name, st, severityError))
	}
	if dir := cfg.EngineWorkDir(); dir != "" {
		checks = append(checks, fromStatus("engine.work_dir", deps.CheckPath("Work dir", dir, "", unix.R_OK|unix.X_OK), severityError))
	}
	checks = append(checks, fromStatus("store.path (dir)", deps.CheckPath("Store dir", filepath.Dir(cfg.Store.Path), "", unix.W_OK), severityError))
	checks = append(checks, checkBind(cfg.API.Bind))

	device := fromStatus("camera.device", deps.CheckPath("Camera", cfg.Camera.Device, "", unix.R_OK|unix.W_OK), severityWarning)
	if device.severity != severityOK {
		device.detail += "; webcam identification unavailable until it appears"
	}
	checks = append(checks, device)
	ffmpeg := deps.CheckBinaries([]deps.Requirement{{Name: "camera.ffmpeg_binary", Command: cfg.Camera.FFmpegBinary}})[0]
	checks = append(checks, fromStatus(ffmpeg.Name, ffmpeg, severityWarning))
	return checks
}

func checkBind(bind string) settingCheck {
	c := settingCheck{key: "api.bind", value: bind}
	if strings.TrimSpace(bind) == "" {
		c.detail = "http api disabled"
		return c
	}
	_, port, err := net.SplitHostPort(bind)
	if err == nil {
		_, err = strconv.ParseUint(port, 10, 16)
	}
	if err != nil {
		c.severity = severityError
		c.detail = fmt.Sprintf("not a host:port address (%v)", err)
	}
	return c
}
