package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/conclave-ai/conclave/internal/council"
	"github.com/conclave-ai/conclave/internal/store"
	"github.com/conclave-ai/conclave/internal/util"
)

var followCmd = &cobra.Command{
	Use:   "follow <session-id>",
	Short: "Follow a running session live",
	Long: `Follow watches the session store and re-renders the transcript as a
running session progresses. The view exits on its own once the session
adjourns; press q to leave earlier.`,
	Args: cobra.ExactArgs(1),
	RunE: runFollow,
}

func init() {
	rootCmd.AddCommand(followCmd)
}

func runFollow(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sessionID := args[0]
	s, err := a.store.Load(cmd.Context(), sessionID)
	if err != nil {
		return fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create store watcher: %w", err)
	}
	defer watcher.Close()

	// The file backend rewrites {id}.json via rename; the sqlite backend
	// appends to the database file. Watching the parent directory covers
	// both.
	watchPath := a.cfg.ResolveStorePath()
	if a.cfg.Store.Backend == "sqlite" {
		watchPath = filepath.Dir(watchPath)
	}
	if err := watcher.Add(watchPath); err != nil {
		return fmt.Errorf("failed to watch %s: %w", watchPath, err)
	}

	m := followModel{
		ctx:       cmd.Context(),
		store:     a.store,
		watcher:   watcher,
		sessionID: sessionID,
		session:   s,
		spinner:   spinner.New(spinner.WithSpinner(spinner.Dot)),
	}

	_, err = tea.NewProgram(&m).Run()
	return err
}

// storeChangedMsg signals that something under the store path changed.
type storeChangedMsg struct{}

// sessionLoadedMsg carries a freshly loaded session snapshot.
type sessionLoadedMsg struct {
	session *council.Session
	err     error
}

// followTickMsg is the periodic reload fallback for backends whose
// writes the watcher can miss.
type followTickMsg struct{}

type followModel struct {
	ctx       context.Context
	store     store.Store
	watcher   *fsnotify.Watcher
	sessionID string

	session *council.Session
	loadErr error
	spinner spinner.Model
}

func (m *followModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForChange(), m.tick())
}

// waitForChange blocks on the next relevant filesystem event.
func (m *followModel) waitForChange() tea.Cmd {
	return func() tea.Msg {
		for {
			select {
			case ev, ok := <-m.watcher.Events:
				if !ok {
					return nil
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					return storeChangedMsg{}
				}
			case _, ok := <-m.watcher.Errors:
				if !ok {
					return nil
				}
				// Watcher hiccups degrade to tick-driven reloads.
				return storeChangedMsg{}
			}
		}
	}
}

func (m *followModel) tick() tea.Cmd {
	return tea.Tick(2*time.Second, func(time.Time) tea.Msg {
		return followTickMsg{}
	})
}

func (m *followModel) load() tea.Cmd {
	return func() tea.Msg {
		s, err := m.store.Load(m.ctx, m.sessionID)
		return sessionLoadedMsg{session: s, err: err}
	}
}

func (m *followModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		}
		return m, nil

	case storeChangedMsg:
		return m, tea.Batch(m.load(), m.waitForChange())

	case followTickMsg:
		return m, tea.Batch(m.load(), m.tick())

	case sessionLoadedMsg:
		if msg.err != nil {
			// A deleted session ends the watch; transient read errors keep
			// the last good snapshot.
			m.loadErr = msg.err
			return m, tea.Quit
		}
		m.loadErr = nil
		m.session = msg.session
		if council.Terminal(m.session.Status) {
			return m, tea.Quit
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *followModel) View() string {
	s := m.session
	var b strings.Builder

	fmt.Fprintf(&b, "%s  %s\n", titleStyle.Render(s.Topic), statusBadge(s.Status))
	fmt.Fprintf(&b, "%s  %s\n", kv("Mode", s.Mode), kv("Messages", len(s.Transcript)))
	b.WriteString(divider(70))
	b.WriteString("\n")

	transcript := s.Transcript
	if len(transcript) > 12 {
		transcript = transcript[len(transcript)-12:]
	}
	for _, msg := range transcript {
		if msg.Author == council.AuthorSystem {
			b.WriteString(systemStyle.Render(util.TruncateString(msg.Content, 76)))
		} else {
			line := fmt.Sprintf("%s %s", authorStyle.Render(msg.Author+":"), firstLinePreview(msg.Content))
			b.WriteString(util.TruncateANSI(line, 76))
		}
		b.WriteString("\n")
	}

	b.WriteString(divider(70))
	b.WriteString("\n")
	if council.Terminal(s.Status) {
		b.WriteString("session adjourned\n")
	} else {
		fmt.Fprintf(&b, "%s watching for updates — press q to leave\n", m.spinner.View())
	}
	return b.String()
}
