// Package citation holds the currently selected source citation.
package citation

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"ragchat/internal/types"
)

// Viewer holds at most one selected Source. Selecting replaces the current
// selection; there is no history.
type Viewer struct {
	mu       sync.RWMutex
	selected *types.Source
}

// Select shows src, replacing any current selection.
func (v *Viewer) Select(src types.Source) {
	v.mu.Lock()
	defer v.mu.Unlock()
	s := src
	v.selected = &s
}

// Clear closes the viewer.
func (v *Viewer) Clear() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.selected = nil
}

// Selected returns the current selection.
func (v *Viewer) Selected() (types.Source, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.selected == nil {
		return types.Source{}, false
	}
	return *v.selected, true
}

// Open reports whether a citation is selected.
func (v *Viewer) Open() bool {
	_, ok := v.Selected()
	return ok
}

// Format renders a citation as plain text: a header line, a blank line and
// the snippet exactly as received.
func Format(src types.Source) string {
	return fmt.Sprintf("%s\n\n%s", src.String(), src.Snippet)
}

// Pick resolves a 1-based source reference against a transcript. "N" picks
// source N of the latest assistant message that has sources; "M.N" picks
// source N of message M.
func Pick(messages []types.Message, ref string) (types.Source, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return types.Source{}, fmt.Errorf("missing source number")
	}

	msgIdx := -1
	srcRef := ref
	if m, n, ok := strings.Cut(ref, "."); ok {
		mi, err := parsePositive(m)
		if err != nil {
			return types.Source{}, fmt.Errorf("message number %q: %w", m, err)
		}
		if mi > len(messages) {
			return types.Source{}, fmt.Errorf("no message %d", mi)
		}
		msgIdx = mi - 1
		srcRef = n
	} else {
		for i := len(messages) - 1; i >= 0; i-- {
			if messages[i].Role == types.RoleAssistant && len(messages[i].Sources) > 0 {
				msgIdx = i
				break
			}
		}
		if msgIdx < 0 {
			return types.Source{}, fmt.Errorf("no answer with sources yet")
		}
	}

	si, err := parsePositive(srcRef)
	if err != nil {
		return types.Source{}, fmt.Errorf("source number %q: %w", srcRef, err)
	}
	sources := messages[msgIdx].Sources
	if si > len(sources) {
		return types.Source{}, fmt.Errorf("message %d has %d source(s)", msgIdx+1, len(sources))
	}
	return sources[si-1], nil
}

func parsePositive(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("not a number")
	}
	if n < 1 {
		return 0, fmt.Errorf("must be at least 1")
	}
	return n, nil
}
