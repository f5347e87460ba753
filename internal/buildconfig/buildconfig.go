package buildconfig

// Build-time variables injected via ldflags:
//
//	go build -ldflags "-X github.com/Harshitk-cp/lqe/internal/buildconfig.version=v1.2.0"
var (
	version = "dev"
	commit  = "unknown"
)

// Info describes the running binary.
type Info struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

// Version returns the build version
func Version() string {
	return version
}

// Commit returns the git commit hash
func Commit() string {
	return commit
}

func Get() Info {
	return Info{Version: version, Commit: commit}
}
