package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	edsruntime "github.com/edsworks/eds-runtime"
	"github.com/edsworks/eds-runtime/codec"
	"github.com/edsworks/eds-runtime/identify"
	"github.com/edsworks/eds-runtime/registry"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	nameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	kindStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type browseState int

const (
	stateSelectType browseState = iota
	stateViewType
	stateInputBytes
	stateShowDecode
)

type typeItem struct {
	name   string
	app    string
	handle edsruntime.TypeHandle
	basic  string
	bits   uint32
	bytes  uint32
}

func (i typeItem) Title() string       { return i.app + "/" + i.name }
func (i typeItem) FilterValue() string { return i.app + "/" + i.name }

func (i typeItem) Description() string {
	return fmt.Sprintf("%s · %d bits packed · %d bytes native", i.basic, i.bits, i.bytes)
}

type browseModel struct {
	err       error
	reg       *registry.Registry
	snapshots []string
	current   typeItem
	list      list.Model
	detail    viewport.Model
	input     textinput.Model
	state     browseState
	width     int
	height    int
}

type loadedMsg struct {
	err   error
	reg   *registry.Registry
	items []list.Item
}

type decodedMsg struct {
	err    error
	report string
}

func newBrowseModel(snapshots []string, width, height int) *browseModel {
	l := list.New(nil, list.NewDefaultDelegate(), width, height-4)
	l.Title = "Mounted types"
	l.SetShowStatusBar(false)

	vp := viewport.New(width, height-4)

	ti := textinput.New()
	ti.Placeholder = "hex bytes, e.g. eb90000300000000"
	ti.Prompt = "packed: "
	ti.Width = 60

	return &browseModel{
		snapshots: snapshots,
		list:      l,
		detail:    vp,
		input:     ti,
		state:     stateSelectType,
		width:     width,
		height:    height,
	}
}

func (m *browseModel) Init() tea.Cmd {
	return m.loadSnapshots
}

func (m *browseModel) loadSnapshots() tea.Msg {
	reg, err := mountSnapshots(m.snapshots)
	if err != nil {
		return loadedMsg{err: err}
	}

	var items []list.Item
	for _, app := range reg.Apps() {
		d, err := reg.Dictionary(app)
		if err != nil {
			return loadedMsg{err: err}
		}
		for f := uint16(1); f <= uint16(d.NumFormats()); f++ {
			e, ok := d.Entry(f)
			if !ok {
				continue
			}
			items = append(items, typeItem{
				name:   e.Name,
				app:    d.Name,
				handle: d.HandleFor(f),
				basic:  e.Basic.String(),
				bits:   e.Size.Bits,
				bytes:  e.Size.Bytes,
			})
		}
	}
	return loadedMsg{reg: reg, items: items}
}

func (m *browseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.list.SetSize(msg.Width, msg.Height-4)
		m.detail.Width = msg.Width
		m.detail.Height = msg.Height - 4

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit

		case "q":
			if m.state == stateSelectType && m.list.FilterState() != list.Filtering {
				return m, tea.Quit
			}

		case "enter":
			switch m.state {
			case stateSelectType:
				if it, ok := m.list.SelectedItem().(typeItem); ok {
					m.current = it
					m.detail.SetContent(m.renderDetail(it))
					m.detail.GotoTop()
					m.state = stateViewType
				}
				return m, nil
			case stateInputBytes:
				return m, m.decodeInput
			case stateShowDecode:
				m.state = stateViewType
				m.detail.SetContent(m.renderDetail(m.current))
				m.detail.GotoTop()
				return m, nil
			}

		case "d":
			if m.state == stateViewType {
				m.input.SetValue("")
				m.input.Focus()
				m.state = stateInputBytes
				return m, nil
			}

		case "esc":
			switch m.state {
			case stateViewType:
				m.state = stateSelectType
			case stateInputBytes:
				m.input.Blur()
				m.state = stateViewType
			case stateShowDecode:
				m.state = stateViewType
				m.detail.SetContent(m.renderDetail(m.current))
				m.detail.GotoTop()
			}
			return m, nil
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.reg = msg.reg
		return m, m.list.SetItems(msg.items)

	case decodedMsg:
		if msg.err != nil {
			m.detail.SetContent(errorStyle.Render(fmt.Sprintf("Error: %v", msg.err)))
		} else {
			m.detail.SetContent(msg.report)
		}
		m.detail.GotoTop()
		m.input.Blur()
		m.state = stateShowDecode
		return m, nil
	}

	var cmd tea.Cmd
	switch m.state {
	case stateSelectType:
		m.list, cmd = m.list.Update(msg)
	case stateViewType, stateShowDecode:
		m.detail, cmd = m.detail.Update(msg)
	case stateInputBytes:
		m.input, cmd = m.input.Update(msg)
	}
	return m, cmd
}

func (m *browseModel) decodeInput() tea.Msg {
	packed, err := hex.DecodeString(strings.ReplaceAll(m.input.Value(), " ", ""))
	if err != nil {
		return decodedMsg{err: fmt.Errorf("decode hex: %w", err)}
	}
	report, err := m.renderDecode(m.current.handle, packed)
	if err != nil {
		return decodedMsg{err: err}
	}
	return decodedMsg{report: report}
}

func (m *browseModel) renderDetail(it typeItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", nameStyle.Render(it.app+"/"+it.name))
	fmt.Fprintf(&b, "Basic type:   %s\n", kindStyle.Render(it.basic))
	fmt.Fprintf(&b, "Packed size:  %d bits\n", it.bits)
	fmt.Fprintf(&b, "Native size:  %d bytes\n", it.bytes)

	if di, err := identify.GetDerivedInfo(m.reg, it.handle); err == nil && di.NumDerivatives > 0 {
		fmt.Fprintf(&b, "Derivatives:  %d (max %d bits / %d bytes)\n",
			di.NumDerivatives, di.MaxSize.Bits, di.MaxSize.Bytes)
	}

	members, err := m.reg.Members(it.handle)
	if err == nil {
		b.WriteString("\nMembers:\n")
		for members.Next() {
			ei := members.Entity()
			typeName := "?"
			if te, err := m.reg.Resolve(ei.Handle); err == nil {
				typeName = te.Name
			}
			fmt.Fprintf(&b, "  %s %-14s %s bit %4d  byte %3d\n",
				nameStyle.Render(fmt.Sprintf("%-24s", ei.Name)), ei.Kind,
				kindStyle.Render(fmt.Sprintf("%-20s", typeName)),
				ei.Offset.Bits, ei.Offset.Bytes)
		}
	}
	return b.String()
}

func (m *browseModel) renderDecode(h edsruntime.TypeHandle, packed []byte) (string, error) {
	e, err := m.reg.Resolve(h)
	if err != nil {
		return "", err
	}
	native := make([]byte, nativeCapacity(m.reg, h, e.Size.Bytes))
	final, err := codec.NewUnpacker(m.reg).UnpackCompleteObject(h, native, packed)
	if err != nil && final == 0 {
		return "", err
	}

	fe, rerr := m.reg.Resolve(final)
	if rerr != nil {
		return "", rerr
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Decoded as %s\n\n", resultStyle.Render(fe.Name))
	if err != nil {
		fmt.Fprintf(&b, "%s\n\n", errorStyle.Render(fmt.Sprintf("Warning: %v", err)))
	}

	it, merr := m.reg.Members(final)
	if merr != nil {
		return "", merr
	}
	for it.Next() {
		ei := it.Entity()
		fmt.Fprintf(&b, "  %s = %s\n", nameStyle.Render(fmt.Sprintf("%-24s", ei.Name)),
			resultStyle.Render(memberValue(m.reg, ei, native)))
	}
	return b.String(), nil
}

func (m *browseModel) View() string {
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress ctrl+c to quit.", m.err))
	}
	if m.reg == nil {
		return "Loading dictionaries..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("EDS Browser"))
	b.WriteString(" ")
	b.WriteString(strings.Join(m.snapshots, " "))
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectType:
		b.WriteString(m.list.View())
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • / filter • enter inspect • q quit"))

	case stateViewType:
		b.WriteString(m.detail.View())
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ scroll • d decode bytes • esc back • ctrl+c quit"))

	case stateInputBytes:
		fmt.Fprintf(&b, "Decode as %s\n\n", nameStyle.Render(m.current.Title()))
		b.WriteString(m.input.View())
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter decode • esc back"))

	case stateShowDecode:
		b.WriteString(m.detail.View())
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ scroll • enter/esc back • ctrl+c quit"))
	}
	return b.String()
}

func runInteractive(snapshots []string) error {
	width, height, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		width, height = 80, 24
	}
	p := tea.NewProgram(newBrowseModel(snapshots, width, height), tea.WithAltScreen())
	_, err = p.Run()
	return err
}
