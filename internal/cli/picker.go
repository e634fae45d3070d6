package cli

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kelpfield/riggen/pkg/build"
)

// List styles
var (
	listSelectedStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	listNormalStyle   = lipgloss.NewStyle().Foreground(colorWhite)
	listDimStyle      = lipgloss.NewStyle().Foreground(colorDim)
)

// =============================================================================
// ModulePickerModel - Interactive module selection
// =============================================================================

// ModulePickerModel is the bubbletea model for choosing which modules of
// the starter biped to build. Deselecting a module drops the links of any
// module that named it as parent, so the composed manifest still
// validates.
type ModulePickerModel struct {
	Rig       string
	Specs     []build.ModuleSpec
	Picked    []bool
	Mirror    bool
	Cursor    int
	Confirmed bool
}

// NewModulePickerModel seeds the picker with the starter biped for name,
// everything selected.
func NewModulePickerModel(name string) ModulePickerModel {
	m := build.DefaultManifest(name)
	picked := make([]bool, len(m.Modules))
	for i := range picked {
		picked[i] = true
	}
	return ModulePickerModel{
		Rig:    m.Name,
		Specs:  m.Modules,
		Picked: picked,
		Mirror: m.Mirror,
	}
}

func (m ModulePickerModel) Init() tea.Cmd {
	return nil
}

func (m ModulePickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.Cursor > 0 {
				m.Cursor--
			}
		case "down", "j":
			if m.Cursor < len(m.Specs)-1 {
				m.Cursor++
			}
		case " ":
			m.Picked[m.Cursor] = !m.Picked[m.Cursor]
		case "m":
			m.Mirror = !m.Mirror
		case "enter":
			if m.pickedCount() == 0 {
				return m, nil
			}
			m.Confirmed = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m ModulePickerModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("Select Modules"))
	b.WriteString("  ")
	b.WriteString(listDimStyle.Render(m.Rig))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render("↑/↓ navigate  space toggle  m mirror  ⏎ build  q quit"))
	b.WriteString("\n\n")

	for i, s := range m.Specs {
		cursor := "  "
		if i == m.Cursor {
			cursor = "▸ "
		}

		box := "[ ]"
		if m.Picked[i] {
			box = "[x]"
		}

		id, err := s.ModuleID()
		if err != nil {
			id = s.Kind
		}

		line := fmt.Sprintf("%s%s %-10s %s", cursor, box, id, listDimStyle.Render(describeSpec(s)))
		switch {
		case i == m.Cursor:
			b.WriteString(listSelectedStyle.Render(line))
		case m.Picked[i]:
			b.WriteString(listNormalStyle.Render(line))
		default:
			b.WriteString(listDimStyle.Render(line))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	mirror := "off"
	if m.Mirror {
		mirror = "on"
	}
	b.WriteString(fmt.Sprintf("  mirror: %s\n", StyleHighlight.Render(mirror)))
	b.WriteString(listDimStyle.Render(fmt.Sprintf("  %d of %d modules selected", m.pickedCount(), len(m.Specs))))

	return b.String()
}

// describeSpec renders the secondary column: kind details and the link
// target if the spec declares one.
func describeSpec(s build.ModuleSpec) string {
	var parts []string
	kind := s.Kind
	if s.Variant != "" {
		kind += "/" + s.Variant
	}
	parts = append(parts, kind)
	if s.Joints > 0 {
		parts = append(parts, fmt.Sprintf("%d joints", s.Joints))
	}
	if s.Parent != "" {
		parts = append(parts, iconArrow+" "+s.Parent+"."+s.Role)
	}
	return strings.Join(parts, "  ")
}

func (m ModulePickerModel) pickedCount() int {
	n := 0
	for _, p := range m.Picked {
		if p {
			n++
		}
	}
	return n
}

// Manifest returns the picked subset as a buildable manifest. A kept
// module whose parent was deselected loses its link and builds at the
// root instead.
func (m ModulePickerModel) Manifest() build.Manifest {
	kept := make(map[string]bool)
	for i, s := range m.Specs {
		if !m.Picked[i] {
			continue
		}
		if id, err := s.ModuleID(); err == nil {
			kept[id] = true
		}
	}

	out := build.Manifest{Name: m.Rig, Mirror: m.Mirror}
	for i, s := range m.Specs {
		if !m.Picked[i] {
			continue
		}
		if s.Parent != "" && !kept[s.Parent] {
			s.Parent, s.Role = "", ""
		}
		out.Modules = append(out.Modules, s)
	}
	return out
}

// runModulePicker runs the interactive picker and returns the composed
// manifest. ok is false when the user quit without confirming.
func runModulePicker(rig string) (build.Manifest, bool, error) {
	final, err := tea.NewProgram(NewModulePickerModel(rig)).Run()
	if err != nil {
		return build.Manifest{}, false, err
	}
	m, ok := final.(ModulePickerModel)
	if !ok || !m.Confirmed {
		return build.Manifest{}, false, nil
	}
	return m.Manifest(), true, nil
}
