package theme

import (
	"runtime"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/go-cmp/cmp"
)

func TestIconSetCloneCreatesIndependentCopy(t *testing.T) {
	source := IconSet{"video": "🎥"}
	clone := source.clone()

	source["video"] = "mutated"

	if got, want := clone["video"], "🎥"; got != want {
		t.Errorf("IconSet.clone(%v)[%q] = %q, want %q", source, "video", got, want)
	}
}

func TestThemeIconSetDefensiveCopy(t *testing.T) {
	icons := IconSet{"video": "🎥"}
	theme := New(WithIconSet(icons))

	icons["video"] = "mutated"
	if got, want := theme.Icon("video"), "🎥"; got != want {
		t.Errorf("WithIconSet(%v) Icon(%q) = %q, want %q", icons, "video", got, want)
	}

	exposed := ASCIIIcons()
	exposed["video"] = "changed"
	if got, want := New(WithIconSet(ASCIIIcons())).Icon("video"), "[V]"; got != want {
		t.Errorf("ASCIIIcons() mutation leaked into Icon(%q) = %q, want %q", "video", got, want)
	}
}

func TestThemeIconLookupOrder(t *testing.T) {
	theme := Theme{
		icons:    IconSet{"primary": "icon"},
		fallback: IconSet{"fallback": "fallback-icon"},
	}

	tests := []struct {
		name string
		key  string
		want string
	}{
		{name: "primary", key: "primary", want: "icon"},
		{name: "fallback", key: "fallback", want: "fallback-icon"},
		{name: "missing", key: "missing", want: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := theme.Icon(tc.key); got != tc.want {
				t.Errorf("Theme.Icon(%q) = %q, want %q", tc.key, got, tc.want)
			}
		})
	}
}

func TestDefaultIconSetHonoursSSH(t *testing.T) {
	t.Setenv("SSH_CLIENT", "10.0.0.1 22 22")

	if diff := cmp.Diff(asciiIcons, defaultIconSet()); diff != "" {
		t.Errorf("defaultIconSet() over SSH mismatch (-want +got):\n%s", diff)
	}
}

func TestDefaultIconSetLocal(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("windows always uses ascii icons")
	}
	t.Setenv("SSH_CLIENT", "")
	t.Setenv("SSH_TTY", "")
	t.Setenv("SSH_CONNECTION", "")

	if diff := cmp.Diff(emojiIcons, defaultIconSet()); diff != "" {
		t.Errorf("defaultIconSet() mismatch (-want +got):\n%s", diff)
	}
}

func TestIconSetsCoverSameKeys(t *testing.T) {
	for key := range emojiIcons {
		if _, ok := asciiIcons[key]; !ok {
			t.Errorf("ascii icon set missing %q", key)
		}
	}
}

func TestBadgeStyleColors(t *testing.T) {
	colors := Colors{
		Accent:     lipgloss.Color("1"),
		Background: lipgloss.Color("2"),
		Muted:      lipgloss.Color("3"),
		Success:    lipgloss.Color("4"),
		Warning:    lipgloss.Color("5"),
		Error:      lipgloss.Color("6"),
	}
	theme := New(WithColors(colors))

	tests := []struct {
		kind BadgeKind
		want lipgloss.TerminalColor
	}{
		{BadgeInfo, colors.Accent},
		{BadgeSuccess, colors.Success},
		{BadgeWarning, colors.Warning},
		{BadgeError, colors.Error},
		{BadgeMuted, colors.Muted},
	}
	for _, tc := range tests {
		if got := theme.BadgeStyle(tc.kind).GetBackground(); got != tc.want {
			t.Errorf("BadgeStyle(%d) background = %v, want %v", tc.kind, got, tc.want)
		}
	}
}
