package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/outlivion/portal/core"
)

// printNavigator is the terminal's navigation stack: it tells the user where
// the portal wants to go next.
type printNavigator struct {
	mu        sync.Mutex
	out       io.Writer
	current   string
	navigated chan string
}

var _ core.Navigator = (*printNavigator)(nil)

func newPrintNavigator(out io.Writer) *printNavigator {
	return &printNavigator{out: out, navigated: make(chan string, 1)}
}

func (n *printNavigator) CurrentPath() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}

func (n *printNavigator) SetCurrentPath(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.current = path
}

func (n *printNavigator) Navigate(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.current = path
	fmt.Fprintln(n.out, hintFor(path))
	select {
	case n.navigated <- path:
	default:
	}
}

// WaitNavigation blocks until the next in-portal navigation or timeout.
func (n *printNavigator) WaitNavigation(timeout time.Duration) (string, bool) {
	select {
	case path := <-n.navigated:
		return path, true
	case <-time.After(timeout):
		return "", false
	}
}

func (n *printNavigator) Redirect(target string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintf(n.out, "Open this page to pay:\n  %s\n", target)
}

// hintFor maps a portal screen to the command that shows it.
func hintFor(path string) string {
	screen, _, _ := strings.Cut(path, "?")
	switch {
	case screen == core.DefaultLoginPath:
		return "Signed out. Run `portal login` to sign in."
	case screen == core.DefaultLandingPath:
		return "Done. Run `portal status` to see your subscription."
	case screen == core.DefaultSelectionPath:
		return "Back to plan selection. Run `portal plans` to choose a plan."
	case strings.HasPrefix(screen, "/config/"):
		return fmt.Sprintf("Run `portal config %s` to fetch the configuration.", strings.TrimPrefix(screen, "/config/"))
	default:
		return "→ " + path
	}
}
