package main

import (
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Bigsy/mcpherd/internal/tui"
)

var tuiDebug bool

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Open the interactive dashboard",
	RunE:  runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	var logWriter io.Writer = io.Discard
	if tuiDebug {
		f, ferr := os.OpenFile("/tmp/mcpherd-debug.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if ferr == nil {
			defer f.Close()
			logWriter = f
		}
	}

	rt, err := newRuntime(cfg, logWriter, slog.LevelDebug)
	if err != nil {
		return err
	}
	defer rt.Close()

	model := tui.NewModel(cfg, configPath, rt.manager, rt.bus, rt.registry, rt.notifier)
	p := tea.NewProgram(model, tea.WithAltScreen())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		p.Quit()
	}()
	defer signal.Stop(sigCh)

	if _, err := p.Run(); err != nil {
		return err
	}
	return nil
}
