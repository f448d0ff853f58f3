package main

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"switchres/config"
	"switchres/display"
	"switchres/logging"
	"switchres/modeline"
)

// replaced by tests
var makeBackend = display.Make

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "* error: %v\n", err)
		os.Exit(10)
	}
}

// globals are the flags shared by every command.
type globals struct {
	config  string
	screen  string
	level   string
	logFile string
	rotate  bool
}

// session is the state shared by every command once the backend is up.
type session struct {
	cfg config.Config
	log *slog.Logger
	mgr *display.Manager
	in  io.Reader
	out io.Writer
}

func run(args []string, in io.Reader, out io.Writer) error {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetIn(in)
	cmd.SetOut(out)
	cmd.SetErr(out)
	return cmd.Execute()
}

func newRootCmd() *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:           "switchres",
		Short:         "Create and switch custom video modes on an X screen",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          g.with(listModes),
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.config, "config", "", "configuration file (.toml, .yaml)")
	pf.StringVar(&g.screen, "screen", "", "output to drive: auto, screen<N> or a name such as DP-1")
	pf.StringVar(&g.level, "log", "", "log level: error, info, debug")
	pf.StringVar(&g.logFile, "logfile", "", "rotating log file")
	pf.BoolVar(&g.rotate, "rotate", false, "requested sizes are rotated relative to the monitor")

	root.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List the modes of the output, the desktop mode marked with *",
			Args:  cobra.NoArgs,
			RunE:  g.with(listModes),
		},
		&cobra.Command{
			Use:   "get WIDTH HEIGHT [REFRESH]",
			Short: "Show the listed mode closest to a size and refresh rate",
			Args:  cobra.RangeArgs(2, 3),
			RunE:  g.with(getMode),
		},
		modelineCmd(&cobra.Command{
			Use:   "add MODELINE",
			Short: "Create a mode from an xorg modeline",
			RunE:  g.with(addMode),
		}),
		modelineCmd(&cobra.Command{
			Use:   "delete MODELINE",
			Short: "Remove a mode created from an xorg modeline",
			RunE:  g.with(deleteMode),
		}),
		newSwitchCmd(g),
		&cobra.Command{
			Use:   "restore",
			Short: "Put the desktop mode back",
			Args:  cobra.NoArgs,
			RunE: g.with(func(s *session, _ []string) error {
				return s.mgr.Restore()
			}),
		},
		&cobra.Command{
			Use:   "gui",
			Short: "Open the mode switcher window",
			Args:  cobra.NoArgs,
			RunE: g.with(func(s *session, _ []string) error {
				return runGUI(s)
			}),
		},
	)

	return root
}

// modelineCmd stops flag parsing at the first timing value so that sync
// flags such as -hsync reach the modeline parser.
func modelineCmd(cmd *cobra.Command) *cobra.Command {
	cmd.Args = cobra.MinimumNArgs(1)
	cmd.Flags().SetInterspersed(false)
	return cmd
}

func newSwitchCmd(g *globals) *cobra.Command {
	var hold bool
	var id int

	cmd := &cobra.Command{
		Use:   "switch [--id N | MODELINE]",
		Short: "Switch to a listed mode or to a modeline, adding it if needed",
		RunE: g.with(func(s *session, args []string) error {
			return switchMode(s, args, id, hold)
		}),
	}
	cmd.Flags().SetInterspersed(false)
	cmd.Flags().BoolVar(&hold, "hold", false, "wait for Enter, then restore the desktop and remove the mode")
	cmd.Flags().IntVar(&id, "id", 0, "switch to the listed mode with this ID")

	return cmd
}

// with wraps fn so that it runs against an initialised session.
func (g *globals) with(fn func(s *session, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg := config.Default()
		if g.config != "" {
			var err error
			cfg, err = config.Load(g.config)
			if err != nil {
				return err
			}
		}
		if g.screen != "" {
			cfg.Screen = g.screen
		}
		if g.level != "" {
			cfg.LogLevel = g.level
		}
		if g.logFile != "" {
			cfg.LogFile = g.logFile
		}
		if cmd.Flags().Changed("rotate") {
			cfg.Rotate = g.rotate
		}

		log, err := logging.Setup(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile, Output: os.Stderr})
		if err != nil {
			return err
		}
		defer logging.Close()

		if err := cfg.Validate(log); err != nil {
			return err
		}

		backend, err := makeBackend(cfg, log)
		if err != nil {
			return err
		}
		s := &session{cfg: cfg, log: log, mgr: display.New(backend, log), in: cmd.InOrStdin(), out: cmd.OutOrStdout()}
		defer s.mgr.Close()

		if err := s.start(); err != nil {
			return err
		}
		return fn(s, args)
	}
}

// start reads the output's modes and adds those from the configuration.
func (s *session) start() error {
	if err := s.mgr.Init(); err != nil {
		return err
	}
	s.mgr.SetRotation(s.cfg.Rotate)

	for _, line := range s.cfg.Modelines {
		m, err := modeline.Parse(line)
		if err != nil {
			s.log.Warn("switchres: skipping configured modeline", "modeline", line, "error", err)
			continue
		}
		s.mgr.Add(m)
	}

	return s.mgr.Flush()
}

func (s *session) printMode(m *modeline.Modeline) {
	mark := " "
	if m == s.mgr.Desktop() {
		mark = "*"
	}
	fmt.Fprintf(s.out, "%s%3d %dx%d %.3fHz  %s\n", mark, m.ID, m.HActive, m.VActive, m.VFreq, m.String())
}

func parseArgs(args []string) (modeline.Modeline, error) {
	if len(args) == 0 {
		return modeline.Modeline{}, fmt.Errorf("modeline required")
	}
	return modeline.Parse(strings.Join(args, " "))
}

func listModes(s *session, _ []string) error {
	for _, m := range s.mgr.Modes() {
		s.printMode(m)
	}
	return nil
}

func getMode(s *session, args []string) error {
	width, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("bad width %q", args[0])
	}
	height, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("bad height %q", args[1])
	}
	refresh := 0.0
	if len(args) == 3 {
		refresh, err = strconv.ParseFloat(args[2], 64)
		if err != nil {
			return fmt.Errorf("bad refresh %q", args[2])
		}
	}

	m := s.mgr.Find(width, height, refresh)
	if m == nil {
		return fmt.Errorf("no mode for %dx%d", width, height)
	}

	s.printMode(m)
	return nil
}

func addMode(s *session, args []string) error {
	ml, err := parseArgs(args)
	if err != nil {
		return err
	}

	m := s.mgr.Add(ml)
	if err := s.mgr.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(s.out, m.Name())
	return nil
}

func switchMode(s *session, args []string, id int, hold bool) error {
	var m *modeline.Modeline

	switch {
	case id != 0:
		if len(args) > 0 {
			return fmt.Errorf("either --id or a modeline, not both")
		}
		m = s.mgr.ByID(id)
		if m == nil {
			return fmt.Errorf("no mode with ID %d", id)
		}
		if display.Fixed(m) {
			// a server mode is reached through a copy of its timing
			m = s.mgr.Add(*m)
		}

	default:
		ml, err := parseArgs(args)
		if err != nil {
			return err
		}
		m = s.mgr.Add(ml)
	}

	added := m.Type.Has(modeline.Add)

	if err := s.mgr.SwitchTo(m); err != nil {
		return err
	}
	if !hold {
		return nil
	}

	fmt.Fprintf(s.out, "running %dx%d %.3fHz, press Enter to restore\n", m.HActive, m.VActive, m.VFreq)
	_, _ = bufio.NewReader(s.in).ReadString('\n')

	if err := s.mgr.Restore(); err != nil {
		return err
	}
	if !added {
		return nil
	}
	if err := s.mgr.Delete(m); err != nil {
		return err
	}
	return s.mgr.Flush()
}

func deleteMode(s *session, args []string) error {
	ml, err := parseArgs(args)
	if err != nil {
		return err
	}

	for _, m := range s.mgr.Modes() {
		if m.SameTiming(&ml) && !display.Fixed(m) {
			if err := s.mgr.Delete(m); err != nil {
				return err
			}
			return s.mgr.Flush()
		}
	}

	return fmt.Errorf("%s is not listed", ml.Name())
}
