package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"facewatch/internal/deps"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the engine interpreter, script, ffmpeg and camera",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			statuses := deps.CheckSystem(cfg)

			missing := 0
			rows := make([][]string, 0, len(statuses))
			for _, st := range statuses {
				if !st.Available && !st.Optional {
					missing++
				}
				rows = append(rows, []string{st.Name, st.Command, availability(st, colorize), yesNo(st.Optional), st.Detail})
			}
			if ctx.configPath != "" {
				fmt.Fprintf(out, "Config: %s\n", ctx.configPath)
			}
			fmt.Fprintln(out, renderTable([]string{"Dependency", "Command", "Status", "Optional", "Detail"}, rows, nil))
			if missing > 0 {
				return fmt.Errorf("%d required dependency(ies) missing", missing)
			}
			return nil
		},
	}
}

func availability(st deps.Status, colorize bool) string {
	label, attr := "OK", color.FgGreen
	switch {
	case st.Available:
	case st.Optional:
		label, attr = "MISSING", color.FgYellow
	default:
		label, attr = "MISSING", color.FgRed
	}
	if !colorize {
		return label
	}
	c := color.New(attr)
	c.EnableColor()
	return c.Sprint(label)
}
