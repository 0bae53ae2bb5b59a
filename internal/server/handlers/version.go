package handlers

import (
	"net/http"
	"runtime"

	"github.com/fulmenhq/gofulmen/crucible"

	"github.com/waypointhq/waypoint/internal/core/broker"
)

// Build metadata, set from main through SetVersionInfo.
var (
	AppName      = "waypoint"
	AppVersion   = "dev"
	AppCommit    = "unknown"
	AppBuildDate = "unknown"
)

func SetVersionInfo(version, commit, buildDate string) {
	AppVersion = version
	AppCommit = commit
	AppBuildDate = buildDate
}

// VersionResponse is the /version body. Operations maps each brokered
// operation to the upstream profiles it will try, so operators can see
// which credentials were picked up without reading the config.
type VersionResponse struct {
	App          AppInfo             `json:"app"`
	Dependencies DepInfo             `json:"dependencies"`
	Runtime      RuntimeInfo         `json:"runtime"`
	Operations   map[string][]string `json:"operations,omitempty"`
}

type AppInfo struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Commit    string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version,omitempty"`
}

type DepInfo struct {
	Gofulmen string `json:"gofulmen"`
	Crucible string `json:"crucible"`
}

type RuntimeInfo struct {
	Platform string `json:"platform"`
	NumCPU   int    `json:"num_cpu"`
}

// VersionHandler reports build metadata and, when b is non-nil, the
// broker's per-operation upstream profiles.
func VersionHandler(b *broker.Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		version := crucible.GetVersion()
		resp := VersionResponse{
			App: AppInfo{
				Name:      AppName,
				Version:   AppVersion,
				Commit:    AppCommit,
				BuildDate: AppBuildDate,
				GoVersion: runtime.Version(),
			},
			Dependencies: DepInfo{
				Gofulmen: version.Gofulmen,
				Crucible: version.Crucible,
			},
			Runtime: RuntimeInfo{
				Platform: runtime.GOOS + "/" + runtime.GOARCH,
				NumCPU:   runtime.NumCPU(),
			},
		}
		if b != nil {
			resp.Operations = b.Capabilities()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
