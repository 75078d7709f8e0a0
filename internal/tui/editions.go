package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lepinkainen/shelfscout/internal/gallery"
)

// EditionSource is the part of a cover gallery the picker drives.
type EditionSource interface {
	ISBN() string
	Events() <-chan gallery.Event
	Items() []gallery.Item
	Visible(isbn string) error
}

// EditionResult is what the user picked.
type EditionResult struct {
	Action      SelectionAction
	EditionISBN string
}

type editionItem struct {
	gallery.Item
	requested bool
}

func (i editionItem) Title() string       { return i.EditionISBN }
func (i editionItem) FilterValue() string { return i.EditionISBN }

func (i editionItem) Description() string {
	file := i.File()
	if file == nil {
		return i.Status.String()
	}
	return fmt.Sprintf("%s %dx%d", i.Provider, file.Width, file.Height)
}

type editionDelegate struct {
	styles itemStyles
}

func (d editionDelegate) Height() int                         { return 3 }
func (d editionDelegate) Spacing() int                        { return 1 }
func (d editionDelegate) Update(tea.Msg, *list.Model) tea.Cmd { return nil }

func (d editionDelegate) Render(w io.Writer, m list.Model, idx int, item list.Item) {
	edition, ok := item.(editionItem)
	if !ok {
		return
	}

	title := edition.EditionISBN
	if edition.requested {
		title += " (requested)"
	}
	statusLine := d.styles.statusStyle.Render(fmt.Sprintf("[%s]", strings.ToUpper(edition.Status.String())))
	titleLine := d.styles.titleStyle.Render(title)

	detail := d.styles.faintStyle.Render("waiting for thumbnail")
	if file := edition.File(); file != nil {
		detail = d.styles.metadataStyle.Render(truncate(
			fmt.Sprintf("%s | %dx%d | %s", edition.Provider, file.Width, file.Height, file.Path),
			m.Width()-4,
		))
	}

	content := lipgloss.JoinVertical(lipgloss.Left, lipgloss.JoinHorizontal(lipgloss.Left, statusLine, " ", titleLine), detail)

	container := d.styles.normal
	if idx == m.Index() {
		container = d.styles.selected
	}
	_, _ = fmt.Fprint(w, container.Render(content))
}

type galleryEventMsg struct{ event gallery.Event }

type galleryClosedMsg struct{}

func waitForEvent(events <-chan gallery.Event) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-events
		if !ok {
			return galleryClosedMsg{}
		}
		return galleryEventMsg{event: e}
	}
}

type editionModel struct {
	list   list.Model
	src    EditionSource
	status string
	closed bool
	result EditionResult
}

func newEditionModel(src EditionSource) *editionModel {
	l := list.New(nil, editionDelegate{styles: newItemStyles()}, defaultListWidth, defaultListHeight)
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)
	l.SetShowTitle(false)
	l.SetShowPagination(true)
	l.DisableQuitKeybindings()
	l.Styles.NoItems = lipgloss.NewStyle()

	m := &editionModel{
		list:   l,
		src:    src,
		status: "Looking for editions...",
		result: EditionResult{Action: ActionNone},
	}
	m.refresh()
	return m
}

func (m *editionModel) Init() tea.Cmd { return waitForEvent(m.src.Events()) }

// refresh rebuilds the list from the gallery, keeping the cursor on the
// same edition when it still exists.
func (m *editionModel) refresh() tea.Cmd {
	current := ""
	if selected, ok := m.list.SelectedItem().(editionItem); ok {
		current = selected.EditionISBN
	}

	items := m.src.Items()
	listItems := make([]list.Item, len(items))
	cursor := 0
	for i, item := range items {
		listItems[i] = editionItem{Item: item, requested: item.EditionISBN == m.src.ISBN()}
		if item.EditionISBN == current {
			cursor = i
		}
	}
	cmd := m.list.SetItems(listItems)
	if len(listItems) > 0 {
		m.list.Select(cursor)
	}
	return cmd
}

// reveal asks the gallery for deferred thumbnails on the visible page.
func (m *editionModel) reveal() {
	if m.closed {
		return
	}
	items := m.list.Items()
	start, end := m.list.Paginator.GetSliceBounds(len(items))
	for _, item := range items[start:end] {
		edition, ok := item.(editionItem)
		if !ok || edition.Status != gallery.StatusDeferred {
			continue
		}
		if err := m.src.Visible(edition.EditionISBN); err != nil {
			m.status = err.Error()
		}
	}
}

func (m *editionModel) handleEvent(e gallery.Event) tea.Cmd {
	cmd := m.refresh()
	switch e := e.(type) {
	case gallery.EditionsFound:
		m.status = fmt.Sprintf("%d editions found", len(e.Editions))
	case gallery.ThumbnailReady, gallery.EditionRemoved:
		// a worker slot was freed
		m.reveal()
	case gallery.Terminal:
		m.closed = true
		switch e.Kind {
		case gallery.TerminalNoCapableProvider:
			m.status = "No provider can fetch covers"
		case gallery.TerminalNoEditionsFound:
			m.status = "No edition has a cover"
		default:
			m.status = "Gallery closed"
		}
		if len(m.list.Items()) == 0 {
			m.result = EditionResult{Action: ActionSkipped}
			return tea.Quit
		}
		return cmd
	}
	return tea.Batch(cmd, waitForEvent(m.src.Events()))
}

func (m *editionModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case galleryEventMsg:
		return m, m.handleEvent(msg.event)
	case galleryClosedMsg:
		m.closed = true
		if len(m.list.Items()) == 0 {
			m.result = EditionResult{Action: ActionSkipped}
			return m, tea.Quit
		}
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "enter":
			if selected, ok := m.list.SelectedItem().(editionItem); ok {
				m.result = EditionResult{Action: ActionSelected, EditionISBN: selected.EditionISBN}
				return m, tea.Quit
			}
		case "s", "esc":
			m.result = EditionResult{Action: ActionSkipped}
			return m, tea.Quit
		case "ctrl+c", "q":
			m.result = EditionResult{Action: ActionStopped}
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		width := clamp(defaultListWidth, msg.Width-4, 40)
		height := clamp(defaultListHeight, msg.Height-8, 5)
		m.list.SetSize(width, height)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	if _, ok := msg.(tea.KeyMsg); ok {
		m.reveal()
	}
	return m, cmd
}

func (m *editionModel) View() string {
	header := headerStyle.Render(fmt.Sprintf("Cover editions for: %s", m.src.ISBN()))
	status := helpStyle.Render(m.status)
	help := helpStyle.Render("Up/Down navigate | Enter select | s skip | q stop")
	return lipgloss.JoinVertical(lipgloss.Left, header, status, m.list.View(), buttons(), help)
}

// SelectEdition runs the edition picker until the user chooses an edition,
// skips, or stops. Thumbnails appear as the gallery loads them.
func SelectEdition(src EditionSource) (EditionResult, error) {
	finalModel, err := runProgram(newEditionModel(src))
	if err != nil {
		return EditionResult{}, err
	}
	if typed, ok := finalModel.(*editionModel); ok {
		return typed.result, nil
	}
	return EditionResult{}, fmt.Errorf("unexpected program result")
}
