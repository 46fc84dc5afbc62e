// Package ui renders apprunner in the terminal: the interactive console,
// plain line output, prompts and status messages.
package ui

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Output is where the Print helpers write.
var Output io.Writer = os.Stdout

// PrintHeader prints a styled header
func PrintHeader(text string) {
	style := lipgloss.NewStyle().
		Bold(true).
		Foreground(highlight).
		MarginBottom(1)
	fmt.Fprintln(Output, style.Render("  "+text))
}

// PrintSuccess prints a success message with checkmark
func PrintSuccess(text string) {
	fmt.Fprintln(Output, lipgloss.NewStyle().Foreground(success).Render("✔")+" "+text)
}

// PrintWarning prints a warning message
func PrintWarning(text string) {
	fmt.Fprintln(Output, lipgloss.NewStyle().Foreground(warning).Render("⚠")+" "+text)
}

// PrintError prints an error message
func PrintError(text string) {
	fmt.Fprintln(Output, lipgloss.NewStyle().Foreground(errorColor).Render("✖")+" "+text)
}

// PrintInfo prints an info message
func PrintInfo(text string) {
	fmt.Fprintln(Output, lipgloss.NewStyle().Foreground(info).Render("ℹ")+" "+text)
}

// PrintHighlight prints a label and its value.
func PrintHighlight(label, value string) {
	labelStyle := lipgloss.NewStyle().Foreground(subtle)
	valueStyle := lipgloss.NewStyle().Bold(true)
	fmt.Fprintln(Output, "  "+labelStyle.Render(label+":")+" "+valueStyle.Render(value))
}

// PrintDivider prints a styled divider
func PrintDivider() {
	style := lipgloss.NewStyle().Foreground(dim)
	fmt.Fprintln(Output, style.Render("  "+strings.Repeat("─", 50)))
}

// OpenInBrowser opens url with the platform's default handler.
func OpenInBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return fmt.Errorf("no browser handler for %s", runtime.GOOS)
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	go cmd.Wait()
	return nil
}
