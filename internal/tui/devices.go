package tui

import (
	"fmt"
	"strings"

	"binaural/internal/audio"
	"binaural/internal/config"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#767676"))
)

var (
	quitKeys = key.NewBinding(key.WithKeys("q", "ctrl+c"))
	upKeys   = key.NewBinding(key.WithKeys("up", "k"))
	downKeys = key.NewBinding(key.WithKeys("down", "j"))
	nextKeys = key.NewBinding(key.WithKeys("tab", "right", "l"))
	enterKey = key.NewBinding(key.WithKeys("enter"))
	backKey  = key.NewBinding(key.WithKeys("esc"))
	saveKey  = key.NewBinding(key.WithKeys("s"))
)

// ScreenType defines which screen is currently active
type ScreenType int

const (
	ListScreen ScreenType = iota
	ConfigScreen
)

// Role is how the selected device will be used by the stream.
type Role int

const (
	RoleDuplex Role = iota
	RoleInput
	RoleOutput
)

func (r Role) String() string {
	switch r {
	case RoleInput:
		return "input only"
	case RoleOutput:
		return "output only"
	default:
		return "input and output"
	}
}

// availableSampleRates are offered on the configuration screen.
var availableSampleRates = []float64{44100, 48000, 88200, 96000}

// Selection is the stream setup chosen in the browser.
type Selection struct {
	InputDevice  int
	OutputDevice int
	SampleRate   float64
}

// DeviceListModel represents the Bubble Tea model for browsing audio devices
type DeviceListModel struct {
	fetch         func() ([]audio.DeviceInfo, error)
	devices       []audio.DeviceInfo
	selectedIndex int
	viewport      viewport.Model
	ready         bool
	err           error
	activeScreen  ScreenType

	// Configuration options
	roles           []Role
	roleIndex       int
	sampleRateIndex int
	editingRate     bool

	selection *Selection
}

type devicesMsg struct {
	devices []audio.DeviceInfo
}

type errMsg struct {
	err error
}

// NewDeviceListModel creates a model that lists devices using fetch.
func NewDeviceListModel(fetch func() ([]audio.DeviceInfo, error)) DeviceListModel {
	return DeviceListModel{
		fetch:        fetch,
		activeScreen: ListScreen,
	}
}

// Init initializes the Bubble Tea model
func (m DeviceListModel) Init() tea.Cmd {
	fetch := m.fetch
	return func() tea.Msg {
		devices, err := fetch()
		if err != nil {
			return errMsg{err}
		}
		return devicesMsg{devices}
	}
}

// Selection returns the saved setup, if the user saved one.
func (m DeviceListModel) Selection() (Selection, bool) {
	if m.selection == nil {
		return Selection{}, false
	}
	return *m.selection, true
}

func (m DeviceListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-4)
			m.viewport.Style = lipgloss.NewStyle()
			m.ready = true
			m.refresh()
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 4
		}

	case devicesMsg:
		m.devices = msg.devices
		m.refresh()

	case errMsg:
		m.err = msg.err

	case tea.KeyMsg:
		if key.Matches(msg, quitKeys) {
			return m, tea.Quit
		}
		if m.activeScreen == ListScreen {
			m.updateList(msg)
		} else {
			if key.Matches(msg, saveKey) {
				m.save()
				return m, tea.Quit
			}
			m.updateConfig(msg)
		}
		m.refresh()
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *DeviceListModel) updateList(msg tea.KeyMsg) {
	switch {
	case key.Matches(msg, upKeys):
		if m.selectedIndex > 0 {
			m.selectedIndex--
		}
	case key.Matches(msg, downKeys):
		if m.selectedIndex < len(m.devices)-1 {
			m.selectedIndex++
		}
	case key.Matches(msg, enterKey):
		if len(m.devices) == 0 {
			return
		}
		d := m.devices[m.selectedIndex]
		m.roles = rolesFor(d)
		if len(m.roles) == 0 {
			return
		}
		m.activeScreen = ConfigScreen
		m.roleIndex = 0
		m.editingRate = false
		m.sampleRateIndex = 0
		for i, rate := range availableSampleRates {
			if rate == d.DefaultSampleRate {
				m.sampleRateIndex = i
				break
			}
		}
	}
}

func (m *DeviceListModel) updateConfig(msg tea.KeyMsg) {
	switch {
	case key.Matches(msg, backKey):
		m.activeScreen = ListScreen
	case key.Matches(msg, nextKeys):
		m.editingRate = !m.editingRate
	case key.Matches(msg, upKeys):
		if m.editingRate {
			m.sampleRateIndex = max(m.sampleRateIndex-1, 0)
		} else {
			m.roleIndex = max(m.roleIndex-1, 0)
		}
	case key.Matches(msg, downKeys):
		if m.editingRate {
			m.sampleRateIndex = min(m.sampleRateIndex+1, len(availableSampleRates)-1)
		} else {
			m.roleIndex = min(m.roleIndex+1, len(m.roles)-1)
		}
	}
}

// rolesFor lists the roles a device can take in a stereo duplex stream.
func rolesFor(d audio.DeviceInfo) []Role {
	var roles []Role
	if d.Duplex() {
		roles = append(roles, RoleDuplex)
	}
	if d.MaxInputChannels > 0 {
		roles = append(roles, RoleInput)
	}
	if d.MaxOutputChannels >= 2 {
		roles = append(roles, RoleOutput)
	}
	return roles
}

func (m *DeviceListModel) save() {
	d := m.devices[m.selectedIndex]
	sel := Selection{
		InputDevice:  config.MinDeviceID,
		OutputDevice: config.MinDeviceID,
		SampleRate:   availableSampleRates[m.sampleRateIndex],
	}
	switch m.roles[m.roleIndex] {
	case RoleDuplex:
		sel.InputDevice, sel.OutputDevice = d.ID, d.ID
	case RoleInput:
		sel.InputDevice = d.ID
	case RoleOutput:
		sel.OutputDevice = d.ID
	}
	m.selection = &sel
}

func (m *DeviceListModel) refresh() {
	if !m.ready {
		return
	}
	if m.activeScreen == ConfigScreen {
		m.viewport.SetContent(m.renderDeviceConfig())
	} else {
		m.viewport.SetContent(m.renderDevices())
	}
}

// View renders the UI
func (m DeviceListModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nPress q to exit.", m.err)
	}

	var title, help string

	if m.activeScreen == ListScreen {
		title = titleStyle.Render("Audio Device List")
		help = infoStyle.Render("↑/↓: Navigate • Enter: Configure • q: Quit")
	} else {
		title = titleStyle.Render("Stream Configuration")
		help = infoStyle.Render("↑/↓: Change Value • Tab: Next Field • s: Save • Esc: Back • q: Quit")
	}

	return fmt.Sprintf("%s\n\n%s\n\n%s", title, m.viewport.View(), help)
}

// renderDevices formats the device list
func (m DeviceListModel) renderDevices() string {
	if len(m.devices) == 0 {
		return "No audio devices found."
	}

	var sb strings.Builder
	for i, device := range m.devices {
		deviceInfo := fmt.Sprintf("[%d] %s (%s)\n", device.ID, device.Name, device.Kind())
		deviceInfo += fmt.Sprintf("    Input channels: %d, Output channels: %d\n",
			device.MaxInputChannels, device.MaxOutputChannels)
		deviceInfo += fmt.Sprintf("    Default sample rate: %.0f Hz\n", device.DefaultSampleRate)

		switch {
		case i == m.selectedIndex:
			deviceInfo = highlightStyle.Render(deviceInfo)
		case len(rolesFor(device)) == 0:
			deviceInfo = dimStyle.Render(deviceInfo)
		}

		sb.WriteString(deviceInfo)
		sb.WriteString("\n")
	}
	return sb.String()
}

func marker(selected bool) string {
	if selected {
		return "▶"
	}
	return " "
}

// renderDeviceConfig formats the stream configuration screen
func (m DeviceListModel) renderDeviceConfig() string {
	var sb strings.Builder
	device := m.devices[m.selectedIndex]

	fmt.Fprintf(&sb, "Configure Device: %s\n\n", device.Name)

	heading := "Use as:"
	if !m.editingRate {
		heading = highlightStyle.Render(heading)
	}
	sb.WriteString(heading + "\n")
	for i, role := range m.roles {
		line := fmt.Sprintf("  %s %s\n", marker(i == m.roleIndex), role)
		if i == m.roleIndex {
			line = highlightStyle.Render(line)
		}
		sb.WriteString(line)
	}

	heading = "Sample Rate (dataset rate):"
	if m.editingRate {
		heading = highlightStyle.Render(heading)
	}
	sb.WriteString("\n" + heading + "\n")
	for i, rate := range availableSampleRates {
		line := fmt.Sprintf("  %s %.0f Hz\n", marker(i == m.sampleRateIndex), rate)
		if i == m.sampleRateIndex {
			line = highlightStyle.Render(line)
		}
		sb.WriteString(line)
	}
	return sb.String()
}

// StartDeviceListUI launches the Bubble Tea device browser and returns the
// saved selection, if any.
func StartDeviceListUI() (Selection, bool, error) {
	p := tea.NewProgram(
		NewDeviceListModel(audio.GetDevices),
		tea.WithAltScreen(),
	)
	final, err := p.Run()
	if err != nil {
		return Selection{}, false, err
	}
	sel, ok := final.(DeviceListModel).Selection()
	return sel, ok, nil
}
