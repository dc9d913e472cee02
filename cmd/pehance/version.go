// In file: cmd/pehance/version.go
package main

import (
	"fmt"
	"runtime"

	"go.uber.org/zap"

	"github.com/pehance/pehance/internal/version"
)

// Set at build time with -ldflags "-X main.buildVersion=...".
var (
	buildVersion = "dev"
	buildDate    = "unknown"
	gitCommit    = "unknown"
)

type BuildInfo struct {
	Version   string `json:"version"`
	BuildDate string `json:"build_date"`
	GitCommit string `json:"git_commit"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
	LogicTag  string `json:"logic_versions"`
}

func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   buildVersion,
		BuildDate: buildDate,
		GitCommit: gitCommit,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
		LogicTag:  version.Tag(),
	}
}

func (b BuildInfo) fields() []zap.Field {
	return []zap.Field{
		zap.String("version", b.Version),
		zap.String("commit", b.GitCommit),
		zap.String("built", b.BuildDate),
		zap.String("go", b.GoVersion),
		zap.String("logic_versions", b.LogicTag),
	}
}
