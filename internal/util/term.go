package util

import (
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/thushan/mcpmux/pkg/container"
)

/*
   references:
   - https://no-color.org/
   - https://github.com/sitkevij/no_color
*/

// IsTerminal checks if stdout is a terminal using go-isatty
func IsTerminal() bool {
	return isatty.IsTerminal(os.Stdout.Fd())
}

// ShouldUseColors determines if coloured output should be used
func ShouldUseColors() bool {
	if noColor := os.Getenv("NO_COLOR"); noColor != "" {
		return false
	}

	if forceColor := os.Getenv("FORCE_COLOR"); forceColor != "" {
		return forceColor != "0"
	}

	if forced := os.Getenv("MCPMUX_FORCE_COLORS"); forced != "" {
		return strings.ToLower(forced) == "true"
	}

	// containerised runtimes are rarely attached to a real tty even when
	// Fd() reports one (e.g. `docker run -t`), so fall back to plain
	// output there unless a caller explicitly forced colours above.
	if container.IsContainerised() {
		return false
	}

	return IsTerminal()
}
