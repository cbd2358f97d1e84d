package prompts

import "embed"

//go:embed templates/*.md
var templatesFS embed.FS
