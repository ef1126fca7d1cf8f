package version

import "fmt"

// Name is the binary name reported in version strings.
const Name = "wrapperserver"

// Build information, set via -ldflags "-X ...".
var (
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// Info returns formatted version information.
func Info() string {
	return fmt.Sprintf("%s %s (built %s, commit %s)", Name, Version, BuildDate, GitCommit)
}

// Short returns just the version string.
func Short() string {
	return Version
}

// UserAgent is sent by the control client.
func UserAgent() string {
	return Name + "/" + Version
}
