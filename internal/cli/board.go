package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/raphaelgruber/cutout/internal/compare"
	"github.com/raphaelgruber/cutout/internal/jobs"
)

const (
	boardTick = time.Second

	// compareTop is the screen row where the comparison slider starts.
	compareTop = 4

	nudgeStep = 5
)

// changedMsg signals that the store changed
type changedMsg struct{}

// tickMsg refreshes the board while nothing else happens
type tickMsg time.Time

// downloadedMsg carries the outcome of a result download
type downloadedMsg struct {
	path string
	err  error
}

// boardModel is the bubbletea model for the job board.
type boardModel struct {
	ctx      context.Context
	sess     *session
	changes  <-chan struct{}
	progress progress.Model
	theme    Theme

	tabs   []jobs.Category
	tab    int
	cursor int
	list   []jobs.Job

	capture *compare.Capture
	slider  *compare.Slider
	viewing string // job under comparison

	width       int
	downloadDir string
	notice      string
	noticeErr   bool
}

// newBoardModel creates a board showing start's tab first.
func newBoardModel(ctx context.Context, sess *session, changes <-chan struct{}, start jobs.Category) boardModel {
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(24),
	)

	m := boardModel{
		ctx:         ctx,
		sess:        sess,
		changes:     changes,
		progress:    prog,
		theme:       defaultTheme,
		tabs:        jobs.Categories(),
		capture:     &compare.Capture{},
		downloadDir: ".",
	}
	for i, c := range m.tabs {
		if c == start {
			m.tab = i
		}
	}
	m.refresh()
	return m
}

// Init returns the initial commands (store subscription and refresh tick).
func (m boardModel) Init() tea.Cmd {
	return tea.Batch(
		waitForChange(m.ctx, m.changes),
		boardTickCmd(),
		m.progress.Init(),
	)
}

// Update handles messages and returns the updated model.
func (m boardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width

	case changedMsg:
		m.refresh()
		return m, waitForChange(m.ctx, m.changes)

	case tickMsg:
		m.refresh()
		return m, boardTickCmd()

	case downloadedMsg:
		if msg.err != nil {
			m.setNotice(fmt.Sprintf("Download failed: %v", msg.err), true)
		} else {
			m.setNotice("Saved "+msg.path, false)
		}

	case tea.KeyPressMsg:
		return m.handleKey(msg)

	case tea.MouseClickMsg:
		mouse := msg.Mouse()
		if m.slider != nil && mouse.Button == tea.MouseLeft {
			m.slider.Press(compare.Point{X: mouse.X, Y: mouse.Y}, m.sliderBounds())
		}

	case tea.MouseMotionMsg:
		if m.slider != nil {
			mouse := msg.Mouse()
			m.slider.Move(compare.Point{X: mouse.X, Y: mouse.Y})
		}

	case tea.MouseReleaseMsg:
		if m.slider != nil {
			m.slider.Release()
		}

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m boardModel) handleKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" || key == "q" {
		m.closeCompare()
		return m, tea.Quit
	}

	if m.slider != nil {
		switch key {
		case "esc", "enter", "backspace":
			m.closeCompare()
		case "left", "h":
			m.slider.Nudge(-nudgeStep)
		case "right", "l":
			m.slider.Nudge(nudgeStep)
		case "d":
			if job, ok := m.sess.store.Get(m.viewing); ok {
				return m, m.download(job)
			}
		}
		return m, nil
	}

	switch key {
	case "tab":
		m.tab = (m.tab + 1) % len(m.tabs)
		m.cursor = 0
		m.refresh()
	case "shift+tab":
		m.tab = (m.tab + len(m.tabs) - 1) % len(m.tabs)
		m.cursor = 0
		m.refresh()
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.list)-1 {
			m.cursor++
		}
	case "x", "delete":
		if job, ok := m.selected(); ok {
			if _, err := m.sess.store.Remove(job.ID); err != nil {
				m.setNotice(err.Error(), true)
			} else {
				m.setNotice("Removed "+job.File.Name, false)
			}
			m.refresh()
		}
	case "R":
		n := m.sess.store.Reset(m.category())
		m.setNotice(fmt.Sprintf("Removed %d job(s) from %s", n, m.category()), false)
		m.refresh()
	case "d":
		if job, ok := m.selected(); ok {
			if job.Phase != jobs.PhaseSucceeded {
				m.setNotice("Result not ready", true)
				return m, nil
			}
			return m, m.download(job)
		}
	case "enter":
		if job, ok := m.selected(); ok {
			m.openCompare(job)
		}
	}
	return m, nil
}

// View renders the board.
func (m boardModel) View() tea.View {
	v := tea.NewView(m.renderContent())
	v.AltScreen = true
	v.MouseMode = tea.MouseModeCellMotion
	if m.capture.Held() {
		v.MouseMode = tea.MouseModeAllMotion
	}
	return v
}

// renderContent builds the display string.
func (m boardModel) renderContent() string {
	var b strings.Builder
	b.WriteString(m.renderTabs())
	b.WriteString("\n\n")

	if m.slider != nil {
		b.WriteString(m.renderCompare())
	} else {
		b.WriteString(m.renderList())
	}

	if m.notice != "" {
		style := m.theme.statusStyle()
		if m.noticeErr {
			style = m.theme.errorStyle()
		}
		b.WriteString("\n" + style.Render(m.notice) + "\n")
	}
	return b.String()
}

func (m boardModel) renderTabs() string {
	parts := make([]string, len(m.tabs))
	for i, c := range m.tabs {
		spec, _ := c.Spec()
		label := fmt.Sprintf("%s %d/%d", spec.Title, m.sess.store.Len(c), m.sess.store.Capacity())
		if i == m.tab {
			parts[i] = m.theme.activeTabStyle().Render(label)
		} else {
			parts[i] = m.theme.tabStyle().Render(label)
		}
	}
	return strings.Join(parts, " ")
}

func (m boardModel) renderList() string {
	var b strings.Builder
	if len(m.list) == 0 {
		b.WriteString(m.theme.hintStyle().Render("No images in this category.") + "\n")
	}
	for i, job := range m.list {
		marker := "  "
		name := fmt.Sprintf("%-24s", truncate(job.File.Name, 24))
		if i == m.cursor {
			marker = m.theme.selectedStyle().Render("> ")
			name = m.theme.selectedStyle().Render(name)
		}

		var state string
		switch job.Phase {
		case jobs.PhaseRunning:
			state = m.progress.ViewAs(float64(job.Progress)/100) + " " + m.theme.statusStyle().Render(job.StatusLine())
		case jobs.PhaseSucceeded:
			state = m.theme.completedStyle().Render("✓ " + job.StatusLine())
		case jobs.PhaseFailed:
			state = m.theme.errorStyle().Render("✗ " + job.StatusLine())
		default:
			state = m.theme.phaseStyle(job.Phase).Render(job.StatusLine())
		}
		fmt.Fprintf(&b, "%s%s %9s  %s\n", marker, name, job.File.SizeMB(), state)
	}

	b.WriteString("\n")
	if m.sess.orch.Polling(m.category()) {
		b.WriteString(m.theme.statusStyle().Render("● checking status") + "\n")
	}
	b.WriteString(m.theme.hintStyle().Render("tab switch · ↑/↓ select · enter compare · d download · x remove · R reset · q quit"))
	b.WriteString("\n")
	return b.String()
}

func (m boardModel) renderCompare() string {
	var b strings.Builder
	job, _ := m.sess.store.Get(m.viewing)
	fmt.Fprintf(&b, "%s  %s\n\n", m.theme.selectedStyle().Render(job.File.Name), m.theme.hintStyle().Render(job.File.SizeMB()))

	b.WriteString(m.slider.Render(m.sliderBounds().W, m.theme.compareStyles()))
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "%-10s %s\n", m.slider.Left().Label+":", m.slider.Left().URL)
	fmt.Fprintf(&b, "%-10s %s\n\n", m.slider.Right().Label+":", m.slider.Right().URL)
	b.WriteString(m.theme.hintStyle().Render("←/→ or drag to move · d download · esc back · q quit"))
	b.WriteString("\n")
	return b.String()
}

// sliderBounds is where the slider is drawn on screen.
func (m boardModel) sliderBounds() compare.Rect {
	w := 60
	if m.width > 0 {
		w = max(10, m.width)
	}
	return compare.Rect{X: 0, Y: compareTop, W: w, H: compare.Height}
}

func (m boardModel) category() jobs.Category {
	return m.tabs[m.tab]
}

func (m boardModel) selected() (jobs.Job, bool) {
	if m.cursor < 0 || m.cursor >= len(m.list) {
		return jobs.Job{}, false
	}
	return m.list[m.cursor], true
}

// refresh re-reads the current tab and drops a comparison whose job is gone.
func (m *boardModel) refresh() {
	m.list = m.sess.store.Snapshot(m.category())
	m.cursor = min(m.cursor, max(0, len(m.list)-1))

	if m.viewing != "" {
		if job, ok := m.sess.store.Get(m.viewing); !ok || job.Phase != jobs.PhaseSucceeded {
			m.closeCompare()
		}
	}
}

func (m *boardModel) openCompare(job jobs.Job) {
	if job.Phase != jobs.PhaseSucceeded {
		m.setNotice("Result not ready", true)
		return
	}
	spec, _ := job.Category.Spec()
	m.slider = compare.New(
		compare.Image{URL: job.OriginalURL, Label: spec.LeftLabel},
		compare.Image{URL: job.ResultURL, Label: spec.RightLabel},
		m.capture,
	)
	m.viewing = job.ID
	m.notice = ""
}

func (m *boardModel) closeCompare() {
	if m.slider != nil {
		m.slider.Close()
	}
	m.slider = nil
	m.viewing = ""
}

func (m *boardModel) setNotice(msg string, isErr bool) {
	m.notice = msg
	m.noticeErr = isErr
}

// download saves a result in a command so Update never blocks.
func (m boardModel) download(job jobs.Job) tea.Cmd {
	ctx, orch, dir := m.ctx, m.sess.orch, m.downloadDir
	return func() tea.Msg {
		path, err := orch.Download(ctx, job.ID, dir)
		return downloadedMsg{path: path, err: err}
	}
}

// waitForChange blocks until the store signals or ctx ends.
func waitForChange(ctx context.Context, changes <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-changes:
			return changedMsg{}
		case <-ctx.Done():
			return nil
		}
	}
}

// boardTickCmd returns a command that sends a tick after the refresh interval.
func boardTickCmd() tea.Cmd {
	return tea.Tick(boardTick, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// runBoard runs the interactive board until the user quits, then closes
// the session.
func runBoard(ctx context.Context, sess *session, start jobs.Category, notice string) error {
	changes, unsubscribe := sess.store.Subscribe()
	defer unsubscribe()

	model := newBoardModel(ctx, sess, changes, start)
	if notice != "" {
		model.setNotice(notice, true)
	}
	p := tea.NewProgram(model)

	finalModel, err := p.Run()
	if m, ok := finalModel.(boardModel); ok {
		m.closeCompare()
	}
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("board UI error: %w", err)
	}

	sess.finish(os.Stdout)
	return nil
}
