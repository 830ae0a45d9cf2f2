// Package version exposes the build version of the service.
//
// Priority: -ldflags override > VCS info from debug.BuildInfo > "dev".
package version

import "runtime/debug"

// AppName identifies the service in version strings and event sources.
const AppName = "boar"

// gitCommitOverride is set via -ldflags for container builds where .git
// is unavailable.
var gitCommitOverride string

// GitCommit is the short commit hash, or "dev" when build info is
// unavailable.
var GitCommit = initGitCommit()

func initGitCommit() string {
	if gitCommitOverride != "" {
		return short(gitCommitOverride)
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			return short(s.Value)
		}
	}
	return "dev"
}

func short(rev string) string {
	if len(rev) > 8 {
		return rev[:8]
	}
	return rev
}

// Full returns "boar/<commit>".
func Full() string {
	return AppName + "/" + GitCommit
}
