package web

import "embed"

// Dist embeds the built single-page client. The build pipeline replaces
// dist/ with the bundler output; the checked-in shell keeps the binary
// buildable without it.
//
//go:embed dist
var Dist embed.FS
