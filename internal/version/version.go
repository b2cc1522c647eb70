package version

import "fmt"

var (
	CLIName    = "adapters"
	CLIVersion = "0.3.0"
	Commit     = "unknown"
	BuildDate  = "unknown"
)

func Long() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", CLIVersion, Commit, BuildDate)
}

// UserAgent identifies outbound HTTP reads made by adapters.
func UserAgent() string {
	return "defi-adapters/" + CLIVersion
}
